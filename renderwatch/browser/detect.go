package browser

import "github.com/hazyhaar/renderwatch/renderwatch/render"

// detector turns successive markup reads into commits: the first read is a
// mount, every read whose content hash differs from the last is an update.
type detector struct {
	seen bool
	last string
}

func (d *detector) observe(raw string) (render.Phase, bool) {
	h := render.HashHTML([]byte(raw))
	if !d.seen {
		d.seen, d.last = true, h
		return render.PhaseMount, true
	}
	if h == d.last {
		return "", false
	}
	d.last = h
	return render.PhaseUpdate, true
}
