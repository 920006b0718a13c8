package excelts

import (
	"fmt"
	"strings"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// relationship is one entry of a rels part.
type relationship struct {
	ID     string
	Type   string
	Target string
	Mode   string // "External" for targets outside the container
}

// relationships is a parsed rels part. It doubles as the id table hyperlink
// reconciliation resolves against.
type relationships struct {
	list  []*relationship
	index map[string]*relationship
}

func newRelationships() *relationships {
	return &relationships{index: make(map[string]*relationship)}
}

func (r *relationships) add(rel *relationship) {
	r.list = append(r.list, rel)
	r.index[rel.ID] = rel
}

// addNew appends a relationship under the next sequential id. Writer side
// only; parsed tables keep the ids the markup carried.
func (r *relationships) addNew(relType, target, mode string) *relationship {
	rel := &relationship{
		ID:     fmt.Sprintf("rId%d", len(r.list)+1),
		Type:   relType,
		Target: target,
		Mode:   mode,
	}
	r.add(rel)
	return rel
}

// Target resolves a relationship id.
func (r *relationships) Target(id string) (string, bool) {
	if r == nil {
		return "", false
	}
	rel, ok := r.index[id]
	if !ok {
		return "", false
	}
	return rel.Target, true
}

// byType returns the first relationship of the given type, or nil.
func (r *relationships) byType(relType string) *relationship {
	for _, rel := range r.list {
		if rel.Type == relType {
			return rel
		}
	}
	return nil
}

// resolveTarget maps a relationship target to a container entry path. A
// leading slash makes the target container-absolute; otherwise it is
// relative to the directory of the part owning the rels.
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return target[1:]
	}
	return baseDir + target
}

// relsNode parses and renders a rels part.
type relsNode struct {
	xform.Base
	rels *relationships

	started   bool
	skipDepth int
}

func newRelsNode() *relsNode {
	return &relsNode{rels: newRelationships()}
}

func (n *relsNode) Tag() string { return "Relationships" }
func (n *relsNode) Model() any  { return n.rels }

func (n *relsNode) Reset() {
	n.rels = newRelationships()
	n.started = false
	n.skipDepth = 0
}

func (n *relsNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			if ev.Name != "Relationships" {
				return false, fmt.Errorf("expected <Relationships>, found <%s> at %d:%d", ev.Name, ev.Line, ev.Column)
			}
			n.started = true
			return false, nil
		}
		if ev.Name == "Relationship" {
			n.rels.add(&relationship{
				ID:     ev.Attr("Id"),
				Type:   ev.Attr("Type"),
				Target: ev.Attr("Target"),
				Mode:   ev.Attr("TargetMode"),
			})
		}
		n.skipDepth = 1
	case xmlstream.EndElement:
		return true, nil
	}
	return false, nil
}

func (n *relsNode) Render(w *xform.Writer, model any) error {
	rels, _ := model.(*relationships)
	if rels == nil {
		rels = n.rels
	}
	w.Decl()
	w.Open("Relationships", "xmlns", nsPackageRels)
	for _, rel := range rels.list {
		attrs := []string{"Id", rel.ID, "Type", rel.Type, "Target", rel.Target}
		if rel.Mode != "" {
			attrs = append(attrs, "TargetMode", rel.Mode)
		}
		w.Empty("Relationship", attrs...)
	}
	w.Close("Relationships")
	return w.Err()
}
