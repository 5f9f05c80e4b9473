package diff

import (
	"fmt"
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// cardinalityRank orders cardinalities by strictness. A move to a higher
// rank tightens the relationship and breaks consumers that relied on the
// looser shape.
var cardinalityRank = map[odl.Cardinality]int{
	odl.ManyToMany: 0,
	odl.ManyToOne:  1,
	odl.OneToMany:  1,
	odl.OneToOne:   2,
}

func (d *differ) relationships(oldIR, newIR *odl.IR) {
	oldRels := make(map[string]*odl.Relationship, len(oldIR.Relationships))
	for i := range oldIR.Relationships {
		oldRels[oldIR.Relationships[i].Name] = &oldIR.Relationships[i]
	}
	newRels := make(map[string]*odl.Relationship, len(newIR.Relationships))
	for i := range newIR.Relationships {
		newRels[newIR.Relationships[i].Name] = &newIR.Relationships[i]
	}

	oldNames := make(map[string]bool, len(oldRels))
	for n := range oldRels {
		oldNames[n] = true
	}
	newNames := make(map[string]bool, len(newRels))
	for n := range newRels {
		newNames[n] = true
	}

	for _, name := range sortedUnion(oldNames, newNames) {
		path := "relationships/" + name
		oldRel, inOld := oldRels[name]
		newRel, inNew := newRels[name]

		switch {
		case inOld && !inNew:
			d.add(path, RelationshipRemoved, Breaking, name, "")
		case !inOld && inNew:
			d.add(path, RelationshipAdded, NonBreaking, "", name)
		default:
			d.relationshipDetails(path, oldRel, newRel)
		}
	}
}

func (d *differ) relationshipDetails(path string, oldRel, newRel *odl.Relationship) {
	if !joinKeysEqual(oldRel.JoinKeys, newRel.JoinKeys) || oldRel.From != newRel.From || oldRel.To != newRel.To {
		d.add(path+"/joinKeys", RelationshipJoinKeysChanged, Breaking,
			formatJoinKeys(oldRel), formatJoinKeys(newRel))
	}

	if oldRel.Cardinality != newRel.Cardinality {
		severity := NonBreaking
		if cardinalityRank[newRel.Cardinality] > cardinalityRank[oldRel.Cardinality] {
			severity = Breaking
		}
		d.add(path+"/cardinality", RelationshipCardinalityChanged, severity,
			string(oldRel.Cardinality), string(newRel.Cardinality))
	}

	if oldRel.Description != newRel.Description {
		d.add(path, RelationshipDescriptionChanged, NonBreaking, oldRel.Description, newRel.Description)
	}
}

func joinKeysEqual(a, b []odl.JoinKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatJoinKeys(rel *odl.Relationship) string {
	pairs := make([]string, len(rel.JoinKeys))
	for i, k := range rel.JoinKeys {
		pairs[i] = fmt.Sprintf("%s=%s", k[0], k[1])
	}
	return fmt.Sprintf("%s->%s[%s]", rel.From, rel.To, strings.Join(pairs, ","))
}
