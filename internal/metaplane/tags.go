// Package metaplane builds a schema-directed index over the reified
// `.axi` metadata embedded in a PathDB graph (§3 "Meta-plane (reified)",
// §4.F). The importer (internal/axiimport) and this package must agree on
// the same vocabulary of node types, attribute keys, and edge labels; this
// file is that shared vocabulary.
package metaplane

// Node type names (base types of reified meta-plane entities). All carry
// the AxiMeta prefix per the design note in §9 so the executor can prune
// planes cheaply by type.
const (
	TypeSchema       = "AxiMetaSchema"
	TypeObjectType   = "AxiMetaObjectType"
	TypeRelationDecl = "AxiMetaRelationDecl"
	TypeFieldDecl    = "AxiMetaFieldDecl"
	TypeSubtypeDecl  = "AxiMetaSubtypeDecl"
	TypeTheory       = "AxiMetaTheory"
	TypeConstraint   = "AxiMetaConstraint"
	TypeRewriteRule  = "AxiMetaRewriteRule"
)

// Attribute keys used on reified meta-plane nodes and on fact nodes.
const (
	AttrName           = "name"
	AttrAxiSchema      = "axi_schema"
	AttrAxiRelation    = "axi_relation"
	AttrFieldType      = "field_type"
	AttrFieldIndex     = "field_index"
	AttrConstraintKind = "constraint_kind"
	AttrSrcField       = "src_field"
	AttrDstField       = "dst_field"
	AttrMax            = "max"
	AttrWhereField     = "where_field"
	AttrWhereInValues  = "where_in_values" // comma-joined
	AttrFields         = "fields"          // comma-joined, for `key` constraints
	AttrText           = "text"            // opaque body of a named-block constraint
	AttrSubType        = "sub_type"
	AttrSuperType      = "super_type"
	AttrOrientation    = "orientation" // rewrite rule: forward | backward
	AttrVars           = "vars"
	AttrLHS            = "lhs"
	AttrRHS            = "rhs"
	AttrRuleName       = "rule_name" // typing constraint's rewrite-rule reference
	AttrProposalID     = "proposal_id"
	AttrProposalConf   = "proposal_confidence"
)

// Edge labels connecting reified meta-plane nodes, and connecting fact
// nodes back into the meta-plane.
const (
	EdgeSchemaObjectType = "axi_schema_object_type"
	EdgeSchemaRelation   = "axi_schema_relation"
	EdgeSchemaSubtype    = "axi_schema_subtype"
	EdgeRelationField    = "axi_relation_field"
	EdgeSchemaTheory     = "axi_schema_theory"
	EdgeTheoryConstraint = "axi_theory_constraint"
	EdgeTheoryRewrite    = "axi_theory_rewrite"

	// EdgeFactOf connects a fact node back to the relation-decl it
	// instantiates (§3 "Fact nodes").
	EdgeFactOf = "fact_of"

	// EdgeFactInContext mirrors a fact's `ctx` field, always targeting a
	// Context/World entity (§3 invariant 3).
	EdgeFactInContext = "axi_fact_in_context"

	// EdgeHasEvidenceChunk targets a DocChunk entity (§3 invariant 4).
	EdgeHasEvidenceChunk = "has_evidence_chunk"
)

// ConstraintKind enumerates the theory constraint kinds the decoder
// recognizes (§4.F).
type ConstraintKind string

const (
	ConstraintFunctional       ConstraintKind = "functional"
	ConstraintAtMost           ConstraintKind = "at_most"
	ConstraintTyping           ConstraintKind = "typing"
	ConstraintSymmetric        ConstraintKind = "symmetric"
	ConstraintSymmetricWhereIn ConstraintKind = "symmetric_where_in"
	ConstraintTransitive       ConstraintKind = "transitive"
	ConstraintKey              ConstraintKind = "key"
	ConstraintNamedBlock       ConstraintKind = "named_block"
	ConstraintUnknown          ConstraintKind = "unknown"
)

// VirtualTypeTag names the virtual-type bitmap tags of §3/§9.
const (
	VirtualFactNode  = "FactNode"
	VirtualMorphism  = "Morphism"
	VirtualHomotopy  = "Homotopy"
)

// Base context types recognized by the context invariant (§3 invariant 3).
const (
	TypeContext = "Context"
	TypeWorld   = "World"
)
