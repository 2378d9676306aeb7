package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/war/internal/client"
)

// RenderReport prints a load driver report as a table.
func RenderReport(w io.Writer, target string, r client.Report) {
	rate := "-"
	if secs := r.Elapsed.Seconds(); secs > 0 {
		rate = fmt.Sprintf("%.1f/s", float64(r.Completed)/secs)
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Target", "Requested", "Completed", "Failed", "Won", "Lost", "Drew", "Elapsed", "Rate"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.Append([]string{
		target,
		strconv.Itoa(r.Requested),
		strconv.Itoa(r.Completed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Won),
		strconv.Itoa(r.Lost),
		strconv.Itoa(r.Drew),
		r.Elapsed.Round(time.Millisecond).String(),
		rate,
	})
	tw.Render()
}
