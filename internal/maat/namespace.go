package maat

import "strings"

// Namespace names an independently scanned partition of the index.
type Namespace string

const (
	NamespaceScenes Namespace = "scenes"
	NamespaceApps   Namespace = "apps"
	NamespaceUsers  Namespace = "users"

	collectionPrefix = "collection:"
)

// CollectionNamespace returns the namespace of one owner's collection.
func CollectionNamespace(owner string) Namespace {
	return Namespace(collectionPrefix + owner)
}

// Owner returns the owner of a collection namespace.
func (n Namespace) Owner() (string, bool) {
	return strings.CutPrefix(string(n), collectionPrefix)
}

// Kind returns the namespace family, used as a low-cardinality label.
func (n Namespace) Kind() string {
	if _, ok := n.Owner(); ok {
		return "collection"
	}
	return string(n)
}

func (n Namespace) String() string { return string(n) }
