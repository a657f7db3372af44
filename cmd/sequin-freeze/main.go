package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vsariola/sequin"
	"github.com/vsariola/sequin/oto"
	"github.com/vsariola/sequin/tracker"
	"github.com/vsariola/sequin/tracker/gomidi"
	"github.com/vsariola/sequin/version"
	"github.com/vsariola/sequin/vm"
)

func main() {
	log.SetFlags(0)
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the working directory.")
	play := flag.Bool("p", false, "Play the frozen patterns.")
	rawOut := flag.Bool("r", false, "Output the frozen pattern as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the frozen pattern as .wav file. By default, saves stereo float32 buffer to disk.")
	midOut := flag.Bool("m", false, "Output the notes of the pattern as .mid file.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	b64 := flag.Bool("b", false, "Print the frozen pattern as a base64 encoded 16-bit .wav, as used when dragging it to a sample track.")
	info := flag.Bool("i", false, "Print a summary of each frozen pattern.")
	force := flag.Bool("f", false, "Freeze muted patterns without asking.")
	configFile := flag.String("config", "", "YAML config file with samplerate, buffersize and bpm. Defaults to config.yml in the Sequin user config directory, if it exists.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut && !*midOut && !*b64 && !*play {
		*info = true // with no outputs, just tell what was frozen
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	engine, err := tracker.NewEngine(cfg, vm.GoSynther{}, nil)
	if err != nil {
		log.Fatalf("could not create engine: %v", err)
	}
	go reportProgress(engine.Broker)
	if *play {
		device, err := oto.NewDevice(cfg.SampleRate, cfg.BufferSize)
		if err != nil {
			log.Fatalf("could not open audio device: %v", err)
		}
		// freezing swaps the live device out and back in
		if err := engine.Mixer.Open(device); err != nil {
			log.Fatalf("could not start audio device: %v", err)
		}
	}
	confirm := func(title, message string) bool {
		if !*force {
			log.Printf("%s: %s Skipping; use -f to freeze anyway.", title, message)
		}
		return *force
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				_, err := os.Stdout.Write(contents)
				return err
			}
			dir := *directory
			if dir == "" {
				var err error
				if dir, err = os.Getwd(); err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			_, name := filepath.Split(filename)
			f := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+extension)
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		p, err := loadPattern(engine, filename)
		if err != nil {
			return err
		}
		defer engine.ReleasePattern(p)
		engine.SetCurrentPattern(p)
		job, err := engine.Freeze(p, confirm)
		if err != nil {
			if tracker.ErrorKind(err) == tracker.KindDeclined {
				return nil
			}
			return errors.New(tracker.UserMessage(err))
		}
		if job.Wait() != tracker.FreezeCompleted {
			return fmt.Errorf("freezing was aborted: %v", job.Err())
		}
		frozen := p.Frozen()
		if *info {
			if err := writeSummary(os.Stdout, p, frozen); err != nil {
				return fmt.Errorf("could not write summary: %v", err)
			}
		}
		if *rawOut {
			raw, err := frozen.Raw(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			if err := output(".raw", raw); err != nil {
				return fmt.Errorf("error outputting .raw file: %v", err)
			}
		}
		if *wavOut {
			wav, err := frozen.Wav(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .wav file: %v", err)
			}
			if err := output(".wav", wav); err != nil {
				return fmt.Errorf("error outputting .wav file: %v", err)
			}
		}
		if *midOut {
			var buf bytes.Buffer
			if err := gomidi.WritePattern(&buf, p, cfg.BPM); err != nil {
				return fmt.Errorf("could not generate .mid file: %v", err)
			}
			if err := output(".mid", buf.Bytes()); err != nil {
				return fmt.Errorf("error outputting .mid file: %v", err)
			}
		}
		if *b64 {
			payload, err := frozen.Base64()
			if err != nil {
				return fmt.Errorf("could not encode the frozen pattern: %v", err)
			}
			fmt.Println(payload)
		}
		if *play {
			if err := playFrozen(engine, p); err != nil {
				return fmt.Errorf("could not play the frozen pattern: %v", err)
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		files := []string{param}
		if st, err := os.Stat(param); err == nil && st.IsDir() {
			files = nil
			for _, ext := range []string{"*.yml", "*.json", "*.mid"} {
				matches, err := filepath.Glob(filepath.Join(param, ext))
				if err != nil {
					log.Printf("could not glob the path %v for %v files: %v", param, ext, err)
					retval = 1
				}
				files = append(files, matches...)
			}
		}
		for _, file := range files {
			if err := process(file); err != nil {
				log.Printf("could not process file %v: %v", file, err)
				retval = 1
			}
		}
	}
	if err := engine.Close(); err != nil {
		log.Printf("could not close the engine: %v", err)
		retval = 1
	}
	engine.Broker.CloseGUI <- struct{}{}
	tracker.TimeoutReceive[struct{}](engine.Broker.FinishedGUI, 3*time.Second)
	os.Exit(retval)
}

func loadConfig(path string) (tracker.Config, error) {
	if path == "" {
		var err error
		if path, err = tracker.ConfigFile(); err != nil {
			return tracker.DefaultConfig(), nil
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return tracker.DefaultConfig(), nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return tracker.Config{}, err
	}
	defer f.Close()
	return tracker.LoadConfig(f)
}

// loadPattern reads a pattern from a .yml, .json or .mid file. Patterns read
// from MIDI files are named after the file.
func loadPattern(engine *tracker.Engine, filename string) (*sequin.Pattern, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read file %v: %v", filename, err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(filename), ".mid") {
		notes, _, err := gomidi.ReadNotes(f)
		if err != nil {
			return nil, fmt.Errorf("could not parse MIDI file %v: %v", filename, err)
		}
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		p := engine.NewPattern(&sequin.Track{Name: name})
		for _, n := range notes {
			p.AddNote(n, 0)
		}
		return p, nil
	}
	rec, err := sequin.ReadPattern(f)
	if err != nil {
		return nil, fmt.Errorf("the pattern %v could not be parsed: %v", filename, err)
	}
	return engine.LoadPattern(&sequin.Track{Name: rec.Name}, rec), nil
}

// reportProgress prints freeze progress and alerts until CloseGUI.
func reportProgress(broker *tracker.Broker) {
	defer close(broker.FinishedGUI)
	for {
		select {
		case <-broker.CloseGUI:
			return
		case msg := <-broker.ToGUI:
			switch m := msg.(type) {
			case tracker.ProgressMsg:
				if m.Progress < 0 {
					fmt.Fprintln(os.Stderr)
					continue
				}
				fmt.Fprintf(os.Stderr, "\rfreezing %v: %3d%%", m.Pattern.Name(), m.Progress)
			case tracker.Alert:
				log.Printf("%v: %v", m.Priority, m.Message)
			}
		}
	}
}

// playFrozen plays the frozen pattern on the live device through the
// transport and waits until it is over.
func playFrozen(engine *tracker.Engine, p *sequin.Pattern) error {
	if err := engine.Transport.PlayPattern(p, false); err != nil {
		return err
	}
	defer engine.Transport.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if engine.Transport.Finished() {
			break
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Sequin pattern freezer. Renders patterns offline into audio.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
