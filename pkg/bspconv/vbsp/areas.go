package vbsp

import (
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// maxTreeDepth bounds the node recursion; real trees stay far below it.
const maxTreeDepth = 1024

// areaUpdate records that a leaf of area references face.
type areaUpdate struct {
	face, area int
}

// classifyAreas walks every model's tree and merges the collected leaf areas
// into the faces they list. Faces no leaf lists stay unassigned.
func (l *loader) classifyAreas() error {
	l.areas = make([]scene.Area, len(l.faces))
	if len(l.nodes) == 0 {
		l.log.Debug("no bsp tree, faces stay unassigned")
		return nil
	}

	var (
		updates []areaUpdate
		err     error
	)
	w := &treeWalk{
		onPath:  make([]bool, len(l.nodes)),
		visited: make([]int, len(l.nodes)),
	}
	for mi, mdl := range l.models {
		w.model = mi
		updates, err = l.walk(w, mdl.headNode, 0, updates[:0])
		if err != nil {
			return err
		}
		for _, u := range updates {
			l.areas[u.face] = l.areas[u.face].Merge(u.area)
		}
	}
	l.logAreas()
	return nil
}

// treeWalk is the traversal state of one model's tree. visited holds the
// model index plus one of the last walk that entered a node, so a subtree
// shared by several parents is only walked once per model.
type treeWalk struct {
	model   int
	onPath  []bool
	visited []int
}

// walk appends the updates of the subtree at child reference n to out.
// Negative references are leaves, encoded as -1-leaf.
func (l *loader) walk(w *treeWalk, n, depth int, out []areaUpdate) ([]areaUpdate, error) {
	mi := w.model
	if depth > maxTreeDepth {
		return out, scene.Malformed(mi, -1, "bsp tree deeper than %d", maxTreeDepth)
	}
	if n < 0 {
		return l.visitLeaf(mi, -1-n, out)
	}
	if n >= len(l.nodes) {
		return out, scene.Malformed(mi, -1, "node %d outside %d", n, len(l.nodes))
	}
	if w.onPath[n] {
		return out, scene.Malformed(mi, -1, "node %d is its own ancestor", n)
	}
	if w.visited[n] == mi+1 {
		return out, nil
	}
	w.visited[n] = mi + 1

	var err error
	w.onPath[n] = true
	for _, child := range l.nodes[n].children {
		if out, err = l.walk(w, child, depth+1, out); err != nil {
			return out, err
		}
	}
	w.onPath[n] = false
	return out, nil
}

func (l *loader) visitLeaf(mi, li int, out []areaUpdate) ([]areaUpdate, error) {
	if li >= len(l.leafs) {
		return out, scene.Malformed(mi, -1, "leaf %d outside %d", li, len(l.leafs))
	}
	lf := l.leafs[li]
	if lf.firstLeafFace+lf.numLeafFaces > len(l.leafFaces) {
		return out, scene.Malformed(mi, -1, "leaf %d faces %d+%d outside %d", li, lf.firstLeafFace, lf.numLeafFaces, len(l.leafFaces))
	}

	for _, fi := range l.leafFaces[lf.firstLeafFace : lf.firstLeafFace+lf.numLeafFaces] {
		if int(fi) >= len(l.faces) {
			return out, scene.Malformed(mi, int(fi), "leaf %d lists face outside %d", li, len(l.faces))
		}
		out = append(out, areaUpdate{face: int(fi), area: lf.area})
	}
	return out, nil
}

// logAreas reports how the faces of the level were classified.
func (l *loader) logAreas() {
	var unassigned, ambiguous int
	for _, a := range l.areas {
		switch a.Kind {
		case scene.AreaUnassigned:
			unassigned++
		case scene.AreaAmbiguous:
			ambiguous++
		}
	}
	l.log.Debug("classified faces", zap.Int("unassigned", unassigned), zap.Int("ambiguous", ambiguous))
}
