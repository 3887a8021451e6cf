package rdf

const (
	// EntitiesNS is the root of every wormgraph entity namespace.
	EntitiesNS = "http://openworm.org/entities/"

	RDFNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNS = "http://www.w3.org/2001/XMLSchema#"
)

const (
	RDFType IRI = RDFNS + "type"

	XSDString   IRI = XSDNS + "string"
	XSDInteger  IRI = XSDNS + "integer"
	XSDDouble   IRI = XSDNS + "double"
	XSDBoolean  IRI = XSDNS + "boolean"
	XSDDateTime IRI = XSDNS + "dateTime"
)

// TypeNamespace is the namespace instances of typeName are identified in,
// e.g. http://openworm.org/entities/Document/.
func TypeNamespace(typeName string) string {
	return EntitiesNS + typeName + "/"
}

// TypeIRI is the rdf:type object for typeName.
func TypeIRI(typeName string) IRI {
	return IRI(EntitiesNS + typeName)
}

// Predicate is the IRI of field on typeName.
func Predicate(typeName, field string) IRI {
	return IRI(TypeNamespace(typeName) + field)
}
