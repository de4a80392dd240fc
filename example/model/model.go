package model

import (
	"fmt"

	"github.com/mickamy/relmap/orm"
)

type Album struct {
	ID     int64
	Name   string
	Tracks []Track `rel:"has_many,foreign_key:album_id"`
}

type Track struct {
	ID      int64
	AlbumID *int64 `db:"album_id"`
	Album   *Album `rel:"belongs_to,foreign_key:album_id"`
	Title   string
	Tags    []Tag `rel:"many_to_many,through:TrackTag,related_name:tracks"`
}

type Tag struct {
	ID   int64
	Name string
}

type TrackTag struct {
	ID    int64
	Track *Track `rel:"belongs_to,foreign_key:track_id,related_name:track_tags"`
	Tag   *Tag   `rel:"belongs_to,foreign_key:tag_id,related_name:tag_tracks"`
}

func (TrackTag) TableName() string { return "track_tags" }

// Definitions holds the registered definitions of the demo schema.
type Definitions struct {
	Album    *orm.Definition
	Track    *orm.Definition
	Tag      *orm.Definition
	TrackTag *orm.Definition
}

// Register defines every model in reg.
func Register(reg *orm.Registry) (*Definitions, error) {
	var (
		defs Definitions
		err  error
	)
	if defs.Album, err = orm.DefineStruct[Album](reg); err != nil {
		return nil, err
	}
	if defs.Track, err = orm.DefineStruct[Track](reg); err != nil {
		return nil, err
	}
	if defs.Tag, err = orm.DefineStruct[Tag](reg); err != nil {
		return nil, err
	}
	if defs.TrackTag, err = orm.DefineStruct[TrackTag](reg); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("validate models: %w", err)
	}
	return &defs, nil
}
