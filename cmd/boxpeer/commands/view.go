package commands

import (
	"fmt"
	"html/template"
	"os"

	"boxpeer/pkg/preview"
	"boxpeer/pkg/types"

	"github.com/spf13/cobra"
)

var viewHTML string

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>BoxPeer</title></head>
<body>
{{range .}}{{.}}
{{end}}</body></html>
`))

var viewCmd = &cobra.Command{
	Use:   "view [cid...]",
	Short: "Render previews for the current account",
	Long: `Decide access for each CID and render its preview.
Gated content is shown with its price and never fetched.
Without arguments every published record is rendered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := printer()
		if err != nil {
			return err
		}

		session := BP.NewSession()
		defer session.Close()

		var elements []preview.Element
		if len(args) == 0 {
			if elements, err = session.OpenAll(ctx); err != nil {
				return err
			}
		} else {
			for _, arg := range args {
				el, err := session.Open(ctx, types.CID(arg))
				if err != nil {
					status("❌ %s: %v\n", arg, err)
					continue
				}
				elements = append(elements, el)
			}
		}

		if viewHTML != "" {
			if err := writePage(viewHTML, elements); err != nil {
				return err
			}
			status("📝 Wrote %d previews to %s\n", len(elements), viewHTML)
		}
		return p.Elements(elements)
	},
}

func writePage(path string, elements []preview.Element) error {
	parts := make([]template.HTML, 0, len(elements))
	for _, el := range elements {
		h, err := el.HTML()
		if err != nil {
			return fmt.Errorf("render %s: %w", el.CID, err)
		}
		parts = append(parts, h)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pageTmpl.Execute(f, parts)
}

func init() {
	viewCmd.Flags().StringVar(&viewHTML, "html", "", "also write the rendered previews to an HTML file")
	rootCmd.AddCommand(viewCmd)
}
