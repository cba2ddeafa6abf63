package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"collab-backend/internal/storage"
)

// memStore is an in-memory entityStore with the table semantics the
// repositories rely on: conditional creates, string-set merge updates, and
// prefix queries over sparse index projections.
type memStore struct {
	items map[storage.Key]map[string]types.AttributeValue
}

func newMemStore() *memStore {
	return &memStore{items: make(map[storage.Key]map[string]types.AttributeValue)}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	dup := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}

func (m *memStore) Get(_ context.Context, entityType string, key storage.Key) (map[string]types.AttributeValue, error) {
	item, ok := m.items[key]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: entityType}
	}
	return copyItem(item), nil
}

func (m *memStore) BatchGet(_ context.Context, _ string, keys []storage.Key) ([]map[string]types.AttributeValue, error) {
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, key := range keys {
		if item, ok := m.items[key]; ok {
			out[i] = copyItem(item)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, entityType string, item map[string]types.AttributeValue) error {
	key := storage.Key{
		PK: item[storage.AttrPK].(*types.AttributeValueMemberS).Value,
		SK: item[storage.AttrSK].(*types.AttributeValueMemberS).Value,
	}
	if _, exists := m.items[key]; exists {
		return &storage.AlreadyExistsError{EntityType: entityType}
	}
	m.items[key] = copyItem(item)
	return nil
}

func (m *memStore) Delete(_ context.Context, _ string, key storage.Key) error {
	delete(m.items, key)
	return nil
}

func (m *memStore) Update(_ context.Context, entityType string, key storage.Key, patch *storage.Patch) (map[string]types.AttributeValue, error) {
	item, ok := m.items[key]
	if !ok {
		item = map[string]types.AttributeValue{
			storage.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
			storage.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
		}
		m.items[key] = item
	}
	if err := applyPatch(item, patch); err != nil {
		return nil, err
	}
	return copyItem(item), nil
}

// applyPatch interprets a built update expression against an item, honoring
// set-assignment, string-set union, and string-set difference semantics.
func applyPatch(item map[string]types.AttributeValue, patch *storage.Patch) error {
	expr, names, values, err := patch.Build()
	if err != nil {
		return err
	}

	rest := expr
	for rest != "" {
		var verb string
		switch {
		case strings.HasPrefix(rest, "SET "):
			verb, rest = "SET", rest[len("SET "):]
		case strings.HasPrefix(rest, "ADD "):
			verb, rest = "ADD", rest[len("ADD "):]
		case strings.HasPrefix(rest, "DELETE "):
			verb, rest = "DELETE", rest[len("DELETE "):]
		}
		end := len(rest)
		for _, next := range []string{" ADD ", " DELETE "} {
			if i := strings.Index(rest, next); i >= 0 && i < end {
				end = i
			}
		}
		body := rest[:end]
		rest = strings.TrimPrefix(rest[end:], " ")

		for _, clause := range strings.Split(body, ", ") {
			fields := strings.Fields(strings.ReplaceAll(clause, " = ", " "))
			name, value := names[fields[0]], values[fields[1]]
			switch verb {
			case "SET":
				item[name] = value
			case "ADD":
				item[name] = unionStringSet(item[name], value)
			case "DELETE":
				if diff, empty := diffStringSet(item[name], value); empty {
					delete(item, name)
				} else {
					item[name] = diff
				}
			}
		}
	}
	return nil
}

func unionStringSet(current, add types.AttributeValue) types.AttributeValue {
	members := map[string]struct{}{}
	if ss, ok := current.(*types.AttributeValueMemberSS); ok {
		for _, v := range ss.Value {
			members[v] = struct{}{}
		}
	}
	for _, v := range add.(*types.AttributeValueMemberSS).Value {
		members[v] = struct{}{}
	}
	merged := make([]string, 0, len(members))
	for v := range members {
		merged = append(merged, v)
	}
	sort.Strings(merged)
	return &types.AttributeValueMemberSS{Value: merged}
}

func diffStringSet(current, remove types.AttributeValue) (types.AttributeValue, bool) {
	ss, ok := current.(*types.AttributeValueMemberSS)
	if !ok {
		return nil, true
	}
	removed := map[string]struct{}{}
	for _, v := range remove.(*types.AttributeValueMemberSS).Value {
		removed[v] = struct{}{}
	}
	var kept []string
	for _, v := range ss.Value {
		if _, gone := removed[v]; !gone {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil, true
	}
	return &types.AttributeValueMemberSS{Value: kept}, false
}

func (m *memStore) Query(_ context.Context, _ string, params storage.QueryParams) (*storage.QueryPage, error) {
	pkAttr, skAttr := storage.AttrPK, storage.AttrSK
	switch params.Index {
	case storage.IndexGSI1:
		pkAttr, skAttr = storage.AttrGSI1PK, storage.AttrGSI1SK
	case storage.IndexGSI2:
		pkAttr, skAttr = storage.AttrGSI2PK, storage.AttrGSI2SK
	case storage.IndexGSI3:
		pkAttr, skAttr = storage.AttrGSI3PK, storage.AttrGSI3SK
	}

	type match struct {
		sk   string
		item map[string]types.AttributeValue
	}
	var matches []match
	for _, item := range m.items {
		pk, ok := item[pkAttr].(*types.AttributeValueMemberS)
		if !ok || pk.Value != params.PartitionValue {
			continue
		}
		sk, ok := item[skAttr].(*types.AttributeValueMemberS)
		if !ok || !strings.HasPrefix(sk.Value, params.SortKeyPrefix) {
			continue
		}
		matches = append(matches, match{sk: sk.Value, item: item})
	}
	sort.Slice(matches, func(i, j int) bool {
		if params.ScanForward {
			return matches[i].sk < matches[j].sk
		}
		return matches[i].sk > matches[j].sk
	})

	start := 0
	if len(params.ExclusiveStartKey) > 0 {
		for i, cand := range matches {
			pk := cand.item[storage.AttrPK].(*types.AttributeValueMemberS).Value
			sk := cand.item[storage.AttrSK].(*types.AttributeValueMemberS).Value
			if pk == params.ExclusiveStartKey[storage.AttrPK] && sk == params.ExclusiveStartKey[storage.AttrSK] {
				start = i + 1
				break
			}
		}
	}
	matches = matches[start:]

	page := &storage.QueryPage{}
	limit := int(params.Limit)
	if limit > 0 && len(matches) > limit {
		last := matches[limit-1].item
		page.LastKey = map[string]string{
			storage.AttrPK: last[storage.AttrPK].(*types.AttributeValueMemberS).Value,
			storage.AttrSK: last[storage.AttrSK].(*types.AttributeValueMemberS).Value,
		}
		if params.Index != "" {
			page.LastKey[pkAttr] = last[pkAttr].(*types.AttributeValueMemberS).Value
			page.LastKey[skAttr] = last[skAttr].(*types.AttributeValueMemberS).Value
		}
		matches = matches[:limit]
	}
	for _, cand := range matches {
		page.Items = append(page.Items, copyItem(cand.item))
	}
	return page, nil
}
