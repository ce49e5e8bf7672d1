package webdavxml

import "reflect"

// PropertyNames returns the qualified names of every tagged child element a
// struct type can encode — the Go runtime stand-in for the property-name
// enum a derive macro would generate at compile time. It is used to answer
// PROPFIND <propname/> requests, which must list every property a resource
// type supports without evaluating their values.
func PropertyNames(v any) []Name {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema := schemaFor(t)
	names := make([]Name, 0, len(schema.byTag))
	for n := range schema.byTag {
		names = append(names, n)
	}
	return names
}

// HasProperty reports whether t declares a tagged child element named n,
// used by PROPFIND <allprop/> handling to distinguish "property not
// supported" (404) from "property supported but absent" (omit from 200,
// no 404).
func HasProperty(v any, n Name) bool {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema := schemaFor(t)
	_, ok := schema.byTag[n]
	return ok
}
