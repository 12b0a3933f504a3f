package cmd

import (
	"os"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"photodedup/internal/progress"
)

// newProgress returns a progress channel for an engine call, rendered as a
// bar unless --quiet was given.
func newProgress(label string) (chan<- progress.Event, func()) {
	if quiet {
		return nil, func() {}
	}
	ch, stop := progressBar(label)
	return ch, stop
}

// progressBar renders engine progress events on stderr. Call the returned
// function once the operation has returned.
func progressBar(label string) (chan progress.Event, func()) {
	ch := make(chan progress.Event, progress.DefaultBuffer)
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	bar := p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			bar.SetTotal(int64(ev.Total), false)
			bar.SetCurrent(int64(ev.Done))
		}
	}()

	return ch, func() {
		close(ch)
		<-done
		bar.SetTotal(-1, true)
		p.Wait()
	}
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}
