package assets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
	"abyssrun/internal/sde"
	"abyssrun/internal/store"
)

// API is the remote surface the pipeline needs; satisfied by
// *esi.Client.
type API interface {
	AssetsPage(ctx context.Context, token string, char esi.CharacterID, page int) ([]esi.AssetItem, int, error)
	AssetNames(ctx context.Context, token string, char esi.CharacterID, items []esi.ItemID) ([]esi.AssetName, error)
	Type(ctx context.Context, id esi.TypeID) (esi.ItemType, error)
	Station(ctx context.Context, id esi.StationID) (esi.Station, error)
	DogmaAttribute(ctx context.Context, id esi.DogmaAttributeID) (esi.DogmaAttribute, error)
	MarketGroup(ctx context.Context, id esi.MarketGroupID) (esi.MarketGroup, error)
	DynamicItem(ctx context.Context, typeID esi.TypeID, itemID esi.ItemID) (esi.DynamicItem, error)
}

// StaticData is the local lookup surface; satisfied by *sde.DB. Hits
// here never cost a network call.
type StaticData interface {
	TypesByIDs(ctx context.Context, ids []esi.TypeID) (map[esi.TypeID]esi.ItemType, error)
	DogmaAttributesByIDs(ctx context.Context, ids []esi.DogmaAttributeID) (map[esi.DogmaAttributeID]esi.DogmaAttribute, error)
	MarketGroupsByIDs(ctx context.Context, ids []esi.MarketGroupID) (map[esi.MarketGroupID]sde.GroupNode, error)
}

// Catalogue hands out the mutator catalogue; satisfied by *hobo.Cache.
type Catalogue interface {
	Get(ctx context.Context) (hobo.MutatorData, error)
}

// TokenSource resolves a character's current access token.
type TokenSource interface {
	AccessToken(ctx context.Context, id esi.CharacterID) (string, error)
}

// Result is a fetched payload waiting to be applied. Work identifies
// the originating item; exactly one payload field is set per kind.
type Result struct {
	Work       Work
	Assets     []esi.AssetItem
	TotalPages int
	Names      []esi.AssetName
	Catalogue  hobo.MutatorData
	Dynamic    *esi.DynamicItem
	Type       *esi.ItemType
	Group      *esi.MarketGroup
	Station    *esi.Station
	Attribute  *esi.DogmaAttribute
}

// Processor wires fetch and apply for the assets pipeline.
type Processor struct {
	api       API
	static    StaticData
	catalogue Catalogue
	store     *store.Store
	tokens    TokenSource
	log       zerolog.Logger
}

// NewProcessor builds the pipeline around its collaborators.
func NewProcessor(api API, static StaticData, catalogue Catalogue, st *store.Store, tokens TokenSource, log zerolog.Logger) *Processor {
	return &Processor{api: api, static: static, catalogue: catalogue, store: st, tokens: tokens, log: log}
}

// Key implements the saga contract.
func (p *Processor) Key(w Work) string { return w.Key() }

// Process fetches the payload for one work item. Types, market groups,
// and dogma attributes consult the static data first; only a miss goes
// to the network. Stations and dynamics are remote-only.
func (p *Processor) Process(ctx context.Context, w Work) (Result, error) {
	r := Result{Work: w}
	switch w.Kind {
	case KindCatalogue:
		data, err := p.catalogue.Get(ctx)
		if err != nil {
			return r, err
		}
		r.Catalogue = data

	case KindAssetsPage:
		token, err := p.tokens.AccessToken(ctx, w.Character)
		if err != nil {
			return r, err
		}
		assets, pages, err := p.api.AssetsPage(ctx, token, w.Character, w.Page)
		if err != nil {
			return r, err
		}
		r.Assets, r.TotalPages = assets, pages

	case KindAssetNames:
		token, err := p.tokens.AccessToken(ctx, w.Character)
		if err != nil {
			return r, err
		}
		names, err := p.api.AssetNames(ctx, token, w.Character, w.Items)
		if err != nil {
			return r, err
		}
		r.Names = names

	case KindDynamic:
		dyn, err := p.api.DynamicItem(ctx, w.TypeID, w.ItemID)
		if err != nil {
			return r, err
		}
		r.Dynamic = &dyn

	case KindType:
		if p.static != nil {
			types, err := p.static.TypesByIDs(ctx, []esi.TypeID{w.TypeID})
			if err != nil {
				return r, err
			}
			if t, ok := types[w.TypeID]; ok {
				r.Type = &t
				return r, nil
			}
		}
		t, err := p.api.Type(ctx, w.TypeID)
		if err != nil {
			return r, err
		}
		r.Type = &t

	case KindMarketGroup:
		if p.static != nil {
			// Static rows carry name and parent but no member list;
			// members are discovered through assets and the catalogue
			// anyway.
			groups, err := p.static.MarketGroupsByIDs(ctx, []esi.MarketGroupID{w.GroupID})
			if err != nil {
				return r, err
			}
			if node, ok := groups[w.GroupID]; ok {
				r.Group = &esi.MarketGroup{MarketGroupID: node.ID, Name: node.Name, ParentGroupID: node.Parent}
				return r, nil
			}
		}
		g, err := p.api.MarketGroup(ctx, w.GroupID)
		if err != nil {
			return r, err
		}
		r.Group = &g

	case KindStation:
		st, err := p.api.Station(ctx, w.StationID)
		if err != nil {
			return r, err
		}
		r.Station = &st

	case KindAttribute:
		if p.static != nil {
			attrs, err := p.static.DogmaAttributesByIDs(ctx, []esi.DogmaAttributeID{w.AttributeID})
			if err != nil {
				return r, err
			}
			if a, ok := attrs[w.AttributeID]; ok {
				r.Attribute = &a
				return r, nil
			}
		}
		a, err := p.api.DogmaAttribute(ctx, w.AttributeID)
		if err != nil {
			return r, err
		}
		r.Attribute = &a

	default:
		return r, fmt.Errorf("assets: unknown work kind %d", w.Kind)
	}
	return r, nil
}

// Apply folds a result into the store and returns the newly discovered
// work. Page one additionally fans out the remaining pages; every page
// queues a names lookup for its own items.
func (p *Processor) Apply(_ context.Context, r Result) ([]Work, error) {
	var refs []store.Ref
	var extra []Work

	switch r.Work.Kind {
	case KindCatalogue:
		refs = p.store.AddMutators(r.Catalogue)
		p.log.Info().Int("mutators", len(r.Catalogue)).Msg("mutator catalogue applied")

	case KindAssetsPage:
		items := make([]esi.ItemID, 0, len(r.Assets))
		for _, a := range r.Assets {
			refs = append(refs, p.store.AddAsset(a)...)
			items = append(items, a.ItemID)
		}
		if r.Work.Page == 1 {
			for page := 2; page <= r.TotalPages; page++ {
				extra = append(extra, Work{Kind: KindAssetsPage, Character: r.Work.Character, Page: page})
			}
		}
		extra = append(extra, Work{
			Kind: KindAssetNames, Character: r.Work.Character, Page: r.Work.Page, Items: items,
		})

	case KindAssetNames:
		for _, n := range r.Names {
			refs = append(refs, p.store.AddAssetName(n)...)
		}

	case KindDynamic:
		refs = p.store.AddDynamic(r.Work.ItemID, *r.Dynamic)

	case KindType:
		refs = p.store.AddType(*r.Type)

	case KindMarketGroup:
		refs = p.store.AddMarketGroup(*r.Group)

	case KindStation:
		refs = p.store.AddStation(*r.Station)

	case KindAttribute:
		refs = p.store.AddDogmaAttribute(*r.Attribute)
	}

	work := make([]Work, 0, len(refs)+len(extra))
	for _, ref := range refs {
		work = append(work, workFromRef(ref))
	}
	return append(work, extra...), nil
}
