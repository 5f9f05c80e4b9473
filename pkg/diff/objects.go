package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

func (d *differ) objects(oldIR, newIR *odl.IR) {
	oldObjs := make(map[string]*odl.Object, len(oldIR.Objects))
	for i := range oldIR.Objects {
		oldObjs[oldIR.Objects[i].Name] = &oldIR.Objects[i]
	}
	newObjs := make(map[string]*odl.Object, len(newIR.Objects))
	for i := range newIR.Objects {
		newObjs[newIR.Objects[i].Name] = &newIR.Objects[i]
	}

	oldNames := make(map[string]bool, len(oldObjs))
	for n := range oldObjs {
		oldNames[n] = true
	}
	newNames := make(map[string]bool, len(newObjs))
	for n := range newObjs {
		newNames[n] = true
	}

	renamedFrom, renamedTo := detectRenames(oldObjs, newObjs)

	for _, name := range sortedUnion(oldNames, newNames) {
		path := "objects/" + name
		oldObj, inOld := oldObjs[name]
		newObj, inNew := newObjs[name]

		switch {
		case inOld && !inNew:
			if to, ok := renamedFrom[name]; ok {
				d.add(path, ObjectRenamed, Breaking, name, to)
				continue
			}
			d.add(path, ObjectRemoved, Breaking, name, "")
		case !inOld && inNew:
			if _, ok := renamedTo[name]; ok {
				// Reported once from the old side as object.renamed.
				continue
			}
			d.add(path, ObjectAdded, NonBreaking, "", name)
		default:
			d.objectDetails(path, oldObj, newObj)
		}
	}
}

// detectRenames applies the rename heuristic: a removed and an added
// object match when their identifier sets are equal and their
// property-name overlap is at least 80%. Multiple candidates tie and the
// rename is refused, reporting removed + added instead.
func detectRenames(oldObjs, newObjs map[string]*odl.Object) (map[string]string, map[string]string) {
	renamedFrom := map[string]string{} // old name -> new name
	renamedTo := map[string]string{}   // new name -> old name

	var removed []string
	for name := range oldObjs {
		if _, ok := newObjs[name]; !ok {
			removed = append(removed, name)
		}
	}
	var added []string
	for name := range newObjs {
		if _, ok := oldObjs[name]; !ok {
			added = append(added, name)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	for _, oldName := range removed {
		var candidates []string
		for _, newName := range added {
			if _, taken := renamedTo[newName]; taken {
				continue
			}
			if renameCandidate(oldObjs[oldName], newObjs[newName]) {
				candidates = append(candidates, newName)
			}
		}
		if len(candidates) == 1 {
			renamedFrom[oldName] = candidates[0]
			renamedTo[candidates[0]] = oldName
		}
	}

	return renamedFrom, renamedTo
}

func renameCandidate(oldObj, newObj *odl.Object) bool {
	if !stringSetsEqual(oldObj.Identifiers, newObj.Identifiers) {
		return false
	}
	return propertyOverlap(oldObj, newObj) >= renameOverlapThreshold
}

// propertyOverlap is |shared property names| / max(|old|, |new|).
func propertyOverlap(oldObj, newObj *odl.Object) float64 {
	oldProps := map[string]bool{}
	for _, p := range oldObj.Properties {
		oldProps[p.Name] = true
	}
	shared := 0
	for _, p := range newObj.Properties {
		if oldProps[p.Name] {
			shared++
		}
	}
	denom := len(oldObj.Properties)
	if len(newObj.Properties) > denom {
		denom = len(newObj.Properties)
	}
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}

func (d *differ) objectDetails(path string, oldObj, newObj *odl.Object) {
	if oldObj.Description != newObj.Description {
		d.add(path, ObjectDescriptionChanged, NonBreaking, oldObj.Description, newObj.Description)
	}

	d.identifiers(path, oldObj, newObj)
	d.properties(path, oldObj, newObj)
}

func (d *differ) identifiers(path string, oldObj, newObj *odl.Object) {
	if stringSetsEqual(oldObj.Identifiers, newObj.Identifiers) {
		return
	}

	oldSet := toSet(oldObj.Identifiers)
	newSet := toSet(newObj.Identifiers)
	removedAny := false
	for id := range oldSet {
		if !newSet[id] {
			removedAny = true
		}
	}

	// Adding identifiers while every old one survives leaves existing
	// keys intact; anything that drops or replaces one is breaking.
	if !removedAny {
		d.add(path+"/identifiers", IdentifierAdded, NonBreaking,
			strings.Join(oldObj.Identifiers, ","), strings.Join(newObj.Identifiers, ","))
		return
	}
	d.add(path+"/identifiers", IdentifierChanged, Breaking,
		strings.Join(oldObj.Identifiers, ","), strings.Join(newObj.Identifiers, ","))
}

func (d *differ) properties(objPath string, oldObj, newObj *odl.Object) {
	oldProps := make(map[string]*odl.Property, len(oldObj.Properties))
	for i := range oldObj.Properties {
		oldProps[oldObj.Properties[i].Name] = &oldObj.Properties[i]
	}
	newProps := make(map[string]*odl.Property, len(newObj.Properties))
	for i := range newObj.Properties {
		newProps[newObj.Properties[i].Name] = &newObj.Properties[i]
	}

	oldNames := make(map[string]bool, len(oldProps))
	for n := range oldProps {
		oldNames[n] = true
	}
	newNames := make(map[string]bool, len(newProps))
	for n := range newProps {
		newNames[n] = true
	}

	for _, name := range sortedUnion(oldNames, newNames) {
		path := objPath + "/properties/" + name
		oldProp, inOld := oldProps[name]
		newProp, inNew := newProps[name]

		switch {
		case inOld && !inNew:
			d.add(path, PropertyRemoved, Breaking, name, "")
		case !inOld && inNew:
			severity := NonBreaking
			if !newProp.Nullable && newProp.Required {
				// Existing rows cannot satisfy a mandatory non-null column.
				severity = Breaking
			}
			d.add(path, PropertyAdded, severity, "", name)
		default:
			d.propertyDetails(path, oldProp, newProp)
		}
	}
}

func (d *differ) propertyDetails(path string, oldProp, newProp *odl.Property) {
	if oldProp.Type != newProp.Type {
		severity := Breaking
		if isWidening(oldProp.Type, newProp.Type) {
			severity = NonBreaking
		}
		d.add(path, PropertyTypeChanged, severity, string(oldProp.Type), string(newProp.Type))
	}

	if oldProp.Nullable != newProp.Nullable {
		severity := NonBreaking
		if oldProp.Nullable && !newProp.Nullable {
			severity = Breaking
		}
		d.add(path, PropertyNullableChanged, severity,
			fmt.Sprintf("%t", oldProp.Nullable), fmt.Sprintf("%t", newProp.Nullable))
	}

	if oldProp.Required != newProp.Required {
		severity := NonBreaking
		if !oldProp.Required && newProp.Required {
			severity = Breaking
		}
		d.add(path, PropertyRequiredChanged, severity,
			fmt.Sprintf("%t", oldProp.Required), fmt.Sprintf("%t", newProp.Required))
	}

	if oldProp.Description != newProp.Description {
		d.add(path, PropertyDescriptionChanged, NonBreaking, oldProp.Description, newProp.Description)
	}
}

// isWidening reports safe type changes: integer→decimal→number and
// date→timestamp. Every other pair is breaking.
func isWidening(from, to odl.PropertyType) bool {
	switch from {
	case odl.TypeInteger:
		return to == odl.TypeDecimal || to == odl.TypeNumber
	case odl.TypeDecimal:
		return to == odl.TypeNumber
	case odl.TypeDate:
		return to == odl.TypeTimestamp
	}
	return false
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func stringSetsEqual(a, b []string) bool {
	as, bs := toSet(a), toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if !bs[k] {
			return false
		}
	}
	return true
}
