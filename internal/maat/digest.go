package maat

import (
	"io"
	"strconv"

	"github.com/cespare/xxhash"

	"maat-go/internal/model"
)

// Digests identify snapshot contents: rebuilding an unchanged tree yields
// the same value. Fields are written with unit separators so adjacent
// values cannot run together.

const sep = "\x1f"

func scenesDigest(scenes []model.SceneEntry) uint64 {
	h := xxhash.New()
	for _, e := range scenes {
		io.WriteString(h, e.ID+sep+e.Title+sep)
		for _, kw := range e.Keywords {
			io.WriteString(h, kw+",")
		}
		io.WriteString(h, sep+strconv.FormatBool(e.Visibility)+sep+strconv.FormatBool(e.StaffPick)+sep)
		io.WriteString(h, strconv.FormatInt(e.CreationDate.UnixNano(), 10)+"\n")
	}
	return h.Sum64()
}

func appsDigest(apps []model.AppEntry) uint64 {
	h := xxhash.New()
	for _, a := range apps {
		io.WriteString(h, a.ID+sep+strconv.FormatBool(a.HasIcon)+sep+strconv.FormatBool(a.HasData)+"\n")
	}
	return h.Sum64()
}

func collectionDigest(c *model.CollectionIndex) uint64 {
	h := xxhash.New()
	for _, list := range [][]string{c.Models, c.Panoramas, c.Media} {
		for _, p := range list {
			io.WriteString(h, p+"\n")
		}
		io.WriteString(h, sep)
	}
	return h.Sum64()
}
