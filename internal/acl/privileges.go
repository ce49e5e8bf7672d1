package acl

// Priv is a WebDAV privilege bit, named after the DAV: privilege elements
// (read, write-content, write-properties, bind, unbind, write-acl,
// read-acl, read-current-user-privilege-set).
type Priv uint32

const (
	PrivRead Priv = 1 << iota
	PrivWriteContent
	PrivWriteProperties
	PrivBind
	PrivUnbind
	PrivWriteACL
	PrivReadACL
	PrivReadCurrentUserPrivilegeSet

	PrivAll = PrivRead | PrivWriteContent | PrivWriteProperties | PrivBind |
		PrivUnbind | PrivWriteACL | PrivReadACL | PrivReadCurrentUserPrivilegeSet

	// PrivReadOnly is granted on a resource mirrored from a read-only
	// external subscription URL (model.Calendar.SubscriptionURL set).
	PrivReadOnly = PrivRead | PrivReadACL | PrivReadCurrentUserPrivilegeSet
)

// Effective is the privilege bitset a principal holds on one resource.
type Effective struct {
	bits Priv
}

func NewEffective(bits Priv) Effective { return Effective{bits: bits} }

func (e Effective) Has(p Priv) bool { return e.bits&p != 0 }

func (e Effective) CanRead() bool            { return e.Has(PrivRead) }
func (e Effective) CanWriteContent() bool    { return e.Has(PrivWriteContent) }
func (e Effective) CanWriteProperties() bool { return e.Has(PrivWriteProperties) }
func (e Effective) CanBind() bool            { return e.Has(PrivBind) }
func (e Effective) CanUnbind() bool          { return e.Has(PrivUnbind) }
func (e Effective) CanWriteACL() bool        { return e.Has(PrivWriteACL) }
func (e Effective) CanReadACL() bool         { return e.Has(PrivReadACL) }
func (e Effective) CanReadCurrentUserPrivilegeSet() bool {
	return e.Has(PrivReadCurrentUserPrivilegeSet) || e.CanRead()
}

// Names returns the DAV: privilege element local names this bitset grants,
// in the canonical order RFC 3744 §5.5 lists them, for
// current-user-privilege-set PROPFIND responses.
func (e Effective) Names() []string {
	var names []string
	add := func(p Priv, name string) {
		if e.Has(p) {
			names = append(names, name)
		}
	}
	add(PrivRead, "read")
	add(PrivWriteContent, "write-content")
	add(PrivWriteProperties, "write-properties")
	add(PrivBind, "bind")
	add(PrivUnbind, "unbind")
	add(PrivWriteACL, "write-acl")
	add(PrivReadACL, "read-acl")
	add(PrivReadCurrentUserPrivilegeSet, "read-current-user-privilege-set")
	return names
}
