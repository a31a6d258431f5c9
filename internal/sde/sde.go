// Package sde reads the bundled static data export, a sqlite conversion
// of the game's reference tables. It resolves type, attribute, and
// market-group metadata locally so the pipeline only hits the network
// for data that is not in the export.
package sde

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"abyssrun/internal/esi"
)

// maxGroupDepth caps market-group parent walks; the real hierarchy is
// at most a handful of levels deep.
const maxGroupDepth = 10

// DB wraps the static export connection.
type DB struct {
	db *sqlx.DB
}

// Open opens the export read-only.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sde: open %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// OpenDSN opens an arbitrary DSN; tests use in-memory databases.
func OpenDSN(ctx context.Context, dsn string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sde: open: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// AbyssalTypeIDs lists every type whose name marks it as mutated gear.
func (d *DB) AbyssalTypeIDs(ctx context.Context) ([]esi.TypeID, error) {
	var ids []esi.TypeID
	err := d.db.SelectContext(ctx, &ids, `
		SELECT typeID FROM invTypes
		WHERE typeName LIKE '%Abyssal%' OR typeName LIKE '%Mutated%'
		ORDER BY typeID`)
	if err != nil {
		return nil, fmt.Errorf("sde: abyssal types: %w", err)
	}
	return ids, nil
}

type typeRow struct {
	TypeID        esi.TypeID         `db:"typeID"`
	TypeName      string             `db:"typeName"`
	GroupID       int32              `db:"groupID"`
	MarketGroupID *esi.MarketGroupID `db:"marketGroupID"`
	AttributeID   *esi.DogmaAttributeID `db:"AttributeID"`
	Value         *float64              `db:"Value"`
}

// TypesByIDs loads item classes with their base attribute values in one
// joined query. Types absent from the export are simply missing from
// the result.
func (d *DB) TypesByIDs(ctx context.Context, ids []esi.TypeID) (map[esi.TypeID]esi.ItemType, error) {
	out := make(map[esi.TypeID]esi.ItemType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT t.typeID, t.typeName, t.groupID, t.marketGroupID,
		       a.attributeID AS AttributeID,
		       COALESCE(a.valueFloat, a.valueInt) AS Value
		FROM invTypes t
		LEFT JOIN dgmTypeAttributes a ON a.typeID = t.typeID
		WHERE t.typeID IN (?)
		ORDER BY t.typeID, a.attributeID`, ids)
	if err != nil {
		return nil, fmt.Errorf("sde: types query: %w", err)
	}
	var rows []typeRow
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sde: types: %w", err)
	}
	for _, r := range rows {
		it, ok := out[r.TypeID]
		if !ok {
			it = esi.ItemType{
				TypeID:        r.TypeID,
				Name:          r.TypeName,
				GroupID:       r.GroupID,
				MarketGroupID: r.MarketGroupID,
				Published:     true,
			}
		}
		if r.AttributeID != nil && r.Value != nil {
			it.DogmaAttributes = append(it.DogmaAttributes, esi.DogmaValue{
				AttributeID: *r.AttributeID,
				Value:       *r.Value,
			})
		}
		out[r.TypeID] = it
	}
	return out, nil
}

// DogmaAttributesByIDs loads attribute metadata.
func (d *DB) DogmaAttributesByIDs(ctx context.Context, ids []esi.DogmaAttributeID) (map[esi.DogmaAttributeID]esi.DogmaAttribute, error) {
	out := make(map[esi.DogmaAttributeID]esi.DogmaAttribute, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT attributeID, attributeName, displayName, highIsGood, defaultValue
		FROM dgmAttributeTypes WHERE attributeID IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sde: attributes query: %w", err)
	}
	var rows []struct {
		AttributeID  esi.DogmaAttributeID `db:"attributeID"`
		Name         *string              `db:"attributeName"`
		DisplayName  *string              `db:"displayName"`
		HighIsGood   *bool                `db:"highIsGood"`
		DefaultValue *float64             `db:"defaultValue"`
	}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sde: attributes: %w", err)
	}
	for _, r := range rows {
		out[r.AttributeID] = esi.DogmaAttribute{
			AttributeID:  r.AttributeID,
			Name:         r.Name,
			DisplayName:  r.DisplayName,
			HighIsGood:   r.HighIsGood,
			DefaultValue: r.DefaultValue,
		}
	}
	return out, nil
}

// GroupNode is one market-group row from the export.
type GroupNode struct {
	ID     esi.MarketGroupID  `db:"marketGroupID"`
	Name   string             `db:"marketGroupName"`
	Parent *esi.MarketGroupID `db:"parentGroupID"`
}

// MarketGroupsByIDs loads market-group rows.
func (d *DB) MarketGroupsByIDs(ctx context.Context, ids []esi.MarketGroupID) (map[esi.MarketGroupID]GroupNode, error) {
	out := make(map[esi.MarketGroupID]GroupNode, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT marketGroupID, marketGroupName, parentGroupID
		FROM invMarketGroups WHERE marketGroupID IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sde: groups query: %w", err)
	}
	var rows []GroupNode
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sde: groups: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// GroupPath renders the hierarchy path of a market group, root first,
// segments joined with " / ". Walks stop at the depth cap or on a
// repeated node, so malformed parent links cannot loop.
func (d *DB) GroupPath(ctx context.Context, id esi.MarketGroupID) (string, error) {
	var segments []string
	seen := make(map[esi.MarketGroupID]bool)
	cur := &id
	for depth := 0; cur != nil && depth < maxGroupDepth; depth++ {
		if seen[*cur] {
			break
		}
		seen[*cur] = true
		groups, err := d.MarketGroupsByIDs(ctx, []esi.MarketGroupID{*cur})
		if err != nil {
			return "", err
		}
		node, ok := groups[*cur]
		if !ok {
			break
		}
		segments = append(segments, node.Name)
		cur = node.Parent
	}
	// reverse to root-first order
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, " / "), nil
}
