package dav

import "strings"

// Tree discriminates which routing tree (spec.md §4.9) a path belongs to.
// The two trees differ in depth: CalDAV nests a calendar-home between the
// principal and its calendars, CardDAV does not.
type Tree int

const (
	TreeCalDAV Tree = iota
	TreeCardDAV
)

// Path is a parsed request URL under /caldav or /carddav, broken into up to
// three segments below /principal/{p}/. Which segment means what depends
// on Tree and on how many are present:
//
//	CalDAV:  principal/{p}                    -> Seg1="" Seg2="" Seg3=""
//	         principal/{p}/{home}              -> Seg1={home}
//	         principal/{p}/{home}/{cal}        -> Seg1={home} Seg2={cal}
//	         principal/{p}/{home}/{cal}/{obj}  -> Seg1={home} Seg2={cal} Seg3={obj}
//	CardDAV: principal/{p}                     -> Seg1="" Seg2="" Seg3=""
//	         principal/{p}/{addrbook}          -> Seg1={addrbook}
//	         principal/{p}/{addrbook}/{obj}    -> Seg1={addrbook} Seg2={obj}
type Path struct {
	Tree        Tree
	PrincipalID string
	Seg1        string
	Seg2        string
	Seg3        string
}

// ParsePath canonicalises and splits urlPath into its routing-tree segments.
// ok is false for anything outside /caldav or /carddav (the caller's job to
// route elsewhere, e.g. /.well-known), or for a URL nested deeper than the
// tree allows.
func ParsePath(urlPath string) (Path, bool) {
	trimmed := strings.Trim(urlPath, "/")
	var segs []string
	if trimmed != "" {
		segs = strings.Split(trimmed, "/")
	}
	if len(segs) == 0 {
		return Path{}, false
	}

	var tree Tree
	switch segs[0] {
	case "caldav":
		tree = TreeCalDAV
	case "carddav":
		tree = TreeCardDAV
	default:
		return Path{}, false
	}

	p := Path{Tree: tree}
	if len(segs) == 1 {
		return p, true // service root
	}
	if len(segs) < 3 || segs[1] != "principal" {
		return Path{}, false
	}
	p.PrincipalID = segs[2]

	maxDepth := 6 // {tree}, principal, p, home, cal, obj
	if tree == TreeCardDAV {
		maxDepth = 5 // {tree}, principal, p, addrbook, obj
	}
	if len(segs) > maxDepth {
		return Path{}, false
	}
	if len(segs) > 3 {
		p.Seg1 = segs[3]
	}
	if len(segs) > 4 {
		p.Seg2 = segs[4]
	}
	if len(segs) > 5 {
		p.Seg3 = segs[5]
	}
	return p, true
}

// IsServiceRoot reports the bare /caldav or /carddav index.
func (p Path) IsServiceRoot() bool { return p.PrincipalID == "" }

// IsPrincipal reports a /{tree}/principal/{p} URL.
func (p Path) IsPrincipal() bool { return p.PrincipalID != "" && p.Seg1 == "" }
