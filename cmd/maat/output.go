package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"maat-go/internal/maat"
	"maat-go/internal/model"
)

// printer writes command results as aligned tables on a terminal and as
// JSON otherwise, so the output can be piped into other tools.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(cmd *cobra.Command) *printer {
	forced, _ := cmd.Flags().GetBool("json")
	return &printer{
		w:    os.Stdout,
		json: forced || !term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
}

func (p *printer) scenes(scenes []model.SceneEntry) error {
	if p.json {
		return p.encode(scenes)
	}
	if len(scenes) == 0 {
		fmt.Fprintln(p.w, "No scenes found.")
		return nil
	}
	tw := p.table()
	fmt.Fprintln(tw, "SCENE\tTITLE\tPUBLIC\tCREATED\tKEYWORDS")
	for _, e := range scenes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Title, yesNo(e.Visibility),
			created(e), strings.Join(e.Keywords, ","))
	}
	return tw.Flush()
}

func (p *printer) scene(e model.SceneEntry) error {
	if p.json {
		return p.encode(e)
	}
	fmt.Fprintf(p.w, "Scene:      %s\n", e.ID)
	fmt.Fprintf(p.w, "Title:      %s\n", e.Title)
	fmt.Fprintf(p.w, "Public:     %s\n", yesNo(e.Visibility))
	fmt.Fprintf(p.w, "Staff pick: %s\n", yesNo(e.StaffPick))
	fmt.Fprintf(p.w, "Created:    %s\n", created(e))
	fmt.Fprintf(p.w, "Keywords:   %s\n", strings.Join(e.Keywords, ", "))
	return nil
}

func (p *printer) keywords(h model.KeywordHistogram) error {
	if p.json {
		return p.encode(h)
	}
	if len(h) == 0 {
		fmt.Fprintln(p.w, "No keywords.")
		return nil
	}
	kws := make([]string, 0, len(h))
	for kw := range h {
		kws = append(kws, kw)
	}
	// Most used first.
	slices.SortFunc(kws, func(a, b string) int {
		if h[a] != h[b] {
			return h[b] - h[a]
		}
		return strings.Compare(a, b)
	})
	tw := p.table()
	fmt.Fprintln(tw, "KEYWORD\tSCENES")
	for _, kw := range kws {
		fmt.Fprintf(tw, "%s\t%s\n", kw, humanize.Comma(int64(h[kw])))
	}
	return tw.Flush()
}

func (p *printer) collection(c model.CollectionIndex) error {
	if p.json {
		return p.encode(c)
	}
	sections := []struct {
		name  string
		items []string
	}{
		{"Models", c.Models},
		{"Panoramas", c.Panoramas},
		{"Media", c.Media},
	}
	for _, s := range sections {
		fmt.Fprintf(p.w, "%s (%s)\n", s.name, humanize.Comma(int64(len(s.items))))
		for _, item := range s.items {
			fmt.Fprintf(p.w, "  %s\n", item)
		}
	}
	return nil
}

func (p *printer) apps(apps []model.AppEntry) error {
	if p.json {
		return p.encode(apps)
	}
	if len(apps) == 0 {
		fmt.Fprintln(p.w, "No web-apps found.")
		return nil
	}
	tw := p.table()
	fmt.Fprintln(tw, "APP\tICON\tDATA")
	for _, a := range apps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, yesNo(a.HasIcon), yesNo(a.HasData))
	}
	return tw.Flush()
}

func (p *printer) stats(st model.Stats) error {
	if p.json {
		return p.encode(st)
	}
	tw := p.table()
	rows := []struct {
		label string
		n     int
	}{
		{"Scenes", st.ScenesTotal},
		{"Public scenes", st.ScenesPublic},
		{"Users", st.Users},
		{"Models", st.Models},
		{"Panoramas", st.Panoramas},
		{"Media", st.Media},
		{"Web-apps", st.Apps},
		{"Keywords", len(st.Keywords)},
	}
	fmt.Fprintf(tw, "Instance\t%s\n", st.Name)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.label, humanize.Comma(int64(r.n)))
	}
	return tw.Flush()
}

func (p *printer) status(statuses []maat.NamespaceStatus) error {
	tw := p.table()
	fmt.Fprintln(tw, "NAMESPACE\tSTATE\tENTRIES\tREBUILDS\tBUILT\tDIGEST")
	for _, s := range statuses {
		built := "-"
		if !s.BuiltAt.IsZero() {
			built = humanize.Time(s.BuiltAt)
		}
		digest := "-"
		if s.Digest != 0 {
			digest = fmt.Sprintf("%016x", s.Digest)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Namespace, s.State, humanize.Comma(int64(s.Entries)), s.Rebuilds, built, digest)
	}
	return tw.Flush()
}

func (p *printer) history(recs []maat.RebuildRecord) error {
	if p.json {
		return p.encode(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(p.w, "No rebuilds recorded.")
		return nil
	}
	tw := p.table()
	fmt.Fprintln(tw, "ID\tNAMESPACE\tFINISHED\tDURATION\tENTRIES\tRESULT")
	for _, r := range recs {
		result := "ok"
		if !r.Succeeded() {
			result = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Namespace,
			humanize.Time(r.FinishedAt), r.Duration().String(), humanize.Comma(int64(r.Entries)), result)
	}
	return tw.Flush()
}

func created(e model.SceneEntry) string {
	if e.CreationDate.IsZero() {
		return "-"
	}
	return e.CreationDate.Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
