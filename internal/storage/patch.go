package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Patch accumulates the clauses of a partial update. Only fields explicitly
// added to the patch appear in the resulting update expression; absent
// fields are left untouched rather than overwritten.
type Patch struct {
	sets    []patchClause
	adds    []patchClause
	deletes []patchClause
}

type patchClause struct {
	name  string
	value types.AttributeValue
}

func NewPatch() *Patch {
	return &Patch{}
}

// Set assigns an attribute value.
func (p *Patch) Set(name string, value types.AttributeValue) *Patch {
	p.sets = append(p.sets, patchClause{name: name, value: value})
	return p
}

// SetString assigns a string attribute.
func (p *Patch) SetString(name, value string) *Patch {
	return p.Set(name, &types.AttributeValueMemberS{Value: value})
}

// SetInt assigns a numeric attribute.
func (p *Patch) SetInt(name string, value int) *Patch {
	return p.Set(name, &types.AttributeValueMemberN{Value: strconv.Itoa(value)})
}

// SetBool assigns a boolean attribute.
func (p *Patch) SetBool(name string, value bool) *Patch {
	return p.Set(name, &types.AttributeValueMemberBOOL{Value: value})
}

// AddToStringSet unions members into a string-set attribute. The underlying
// ADD action is a no-op for members already present, so redelivered
// mutations converge on the same set.
func (p *Patch) AddToStringSet(name string, members ...string) *Patch {
	p.adds = append(p.adds, patchClause{name: name, value: &types.AttributeValueMemberSS{Value: members}})
	return p
}

// DeleteFromStringSet removes members from a string-set attribute. Removing
// an absent member is a no-op, not an error.
func (p *Patch) DeleteFromStringSet(name string, members ...string) *Patch {
	p.deletes = append(p.deletes, patchClause{name: name, value: &types.AttributeValueMemberSS{Value: members}})
	return p
}

// IsEmpty reports whether the patch carries no clauses.
func (p *Patch) IsEmpty() bool {
	return len(p.sets) == 0 && len(p.adds) == 0 && len(p.deletes) == 0
}

// Build renders the update expression with attribute-name and value
// placeholders.
func (p *Patch) Build() (string, map[string]string, map[string]types.AttributeValue, error) {
	if p.IsEmpty() {
		return "", nil, nil, errors.New("storage: patch has no clauses")
	}

	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	next := 0

	render := func(clauses []patchClause, sep string) string {
		parts := make([]string, 0, len(clauses))
		for _, cl := range clauses {
			namePH := fmt.Sprintf("#p%d", next)
			valuePH := fmt.Sprintf(":v%d", next)
			next++
			names[namePH] = cl.name
			values[valuePH] = cl.value
			parts = append(parts, namePH+sep+valuePH)
		}
		return strings.Join(parts, ", ")
	}

	var expr []string
	if len(p.sets) > 0 {
		expr = append(expr, "SET "+render(p.sets, " = "))
	}
	if len(p.adds) > 0 {
		expr = append(expr, "ADD "+render(p.adds, " "))
	}
	if len(p.deletes) > 0 {
		expr = append(expr, "DELETE "+render(p.deletes, " "))
	}
	return strings.Join(expr, " "), names, values, nil
}
