package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/fvc/internal/models"
	"github.com/harrison/fvc/internal/walker"
)

// useColor reports whether colored output should be written to w.
func useColor(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintCode writes just the verification code, one line. This is the
// machine-friendly default so the command composes in pipelines.
func PrintCode(out io.Writer, res *walker.Result) {
	fmt.Fprintln(out, res.Code.Hex())
}

// PrintSummary writes the code plus a human-readable account of the run.
func PrintSummary(out io.Writer, res *walker.Result) {
	codeLine := res.Code.Hex()
	if useColor(out) {
		codeLine = color.GreenString(codeLine)
	}
	fmt.Fprintln(out, codeLine)

	fmt.Fprintf(out, "  files hashed: %d (%d bytes)\n", res.FileCount, res.ByteCount)
	if res.CacheHits > 0 {
		fmt.Fprintf(out, "  cache hits:   %d\n", res.CacheHits)
	}
	if len(res.Skipped) > 0 {
		line := fmt.Sprintf("  skipped:      %d", len(res.Skipped))
		if useColor(out) {
			line = color.YellowString(line)
		}
		fmt.Fprintln(out, line)
	}
}

// jsonResult is the stable JSON shape of a calculation.
type jsonResult struct {
	Code string `json:"code"`
	*walker.Result
	Trees []models.Collection `json:"trees,omitempty"`
}

// PrintJSON writes the full result as indented JSON.
func PrintJSON(out io.Writer, res *walker.Result, includeTrees bool) error {
	payload := jsonResult{Code: res.Code.Hex(), Result: res}
	if includeTrees {
		payload.Trees = res.Trees
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// PrintTrees writes one JSON document per traversal root, mirroring the
// directory and archive structure that was walked.
func PrintTrees(out io.Writer, trees []models.Collection) {
	for _, tree := range trees {
		fmt.Fprintln(out, tree.String())
	}
}
