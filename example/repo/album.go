package repo

import (
	"context"

	"github.com/mickamy/relmap/example/model"
	"github.com/mickamy/relmap/orm"
	"github.com/mickamy/relmap/scope"
)

// AlbumRepository wraps relmap queries with a repository pattern.
type AlbumRepository struct {
	defs *model.Definitions
}

func NewAlbumRepository(defs *model.Definitions) *AlbumRepository {
	return &AlbumRepository{defs: defs}
}

func (r *AlbumRepository) Create(ctx context.Context, name string) (*orm.Instance, error) {
	inst, err := r.defs.Album.New(map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	return inst.Save(ctx)
}

func (r *AlbumRepository) AddTrack(ctx context.Context, album *orm.Instance, title string) (*orm.Instance, error) {
	inst, err := r.defs.Track.New(map[string]any{"album": album, "title": title})
	if err != nil {
		return nil, err
	}
	return inst.Save(ctx)
}

func (r *AlbumRepository) Tag(ctx context.Context, track *orm.Instance, name string) (*orm.Instance, error) {
	tag, err := r.defs.Tag.New(map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if _, err := tag.Save(ctx); err != nil {
		return nil, err
	}
	if err := track.Link(ctx, "tags", tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// FindWithTracks loads albums with their tracks and the tracks' tags.
func (r *AlbumRepository) FindWithTracks(ctx context.Context, scopes ...scope.Scope) ([]model.Album, error) {
	items, err := orm.NewQuery(r.defs.Album).
		SelectRelated("tracks__tags").
		Scopes(scopes...).
		All(ctx)
	if err != nil {
		return nil, err
	}
	albums := make([]model.Album, 0, len(items))
	for _, it := range items {
		a, err := orm.Decode[model.Album](it)
		if err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, nil
}

func (r *AlbumRepository) FindByID(ctx context.Context, id any) (*orm.Instance, error) {
	return orm.NewQuery(r.defs.Album).Get(ctx, id)
}

func (r *AlbumRepository) Count(ctx context.Context) (int64, error) {
	return orm.NewQuery(r.defs.Album).Count(ctx)
}

func (r *AlbumRepository) Rename(ctx context.Context, album *orm.Instance, name string) error {
	_, err := album.Update(ctx, map[string]any{"name": name})
	return err
}

func (r *AlbumRepository) Delete(ctx context.Context, album *orm.Instance) (int64, error) {
	return album.Delete(ctx)
}
