package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// exportProgress renders the run's progress bar. Discovery phases keep
// growing the page total mid-run, so the bar starts without a maximum and
// gains one once the first total arrives; later totals only ever raise it.
type exportProgress struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	total int
}

func newExportProgress(out io.Writer, spaceKey string) *exportProgress {
	return &exportProgress{
		out: out,
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("exporting "+spaceKey),
			progressbar.OptionSetWriter(out),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

func (p *exportProgress) SetDescription(desc string) {
	p.bar.Describe(desc)
}

// SetTotal raises the bar's maximum. Discovery never shrinks it, so stale
// lower totals are ignored.
func (p *exportProgress) SetTotal(total int) {
	if total <= p.total {
		return
	}
	p.total = total
	p.bar.ChangeMax(total)
}

func (p *exportProgress) Add(n int) {
	_ = p.bar.Add(n)
}

func (p *exportProgress) Done() {
	_ = p.bar.Finish()
	fmt.Fprintln(p.out)
}
