package orm_test

import (
	"testing"

	"github.com/mickamy/relmap/orm"
)

// music registers Album, Track, Tag, TrackTag and Employee:
//
//	Track.album   → Album   (reverse: Album.track_list)
//	Track.tags   ⇄ Tag      through TrackTag (reverse: Tag.tracks)
//	Employee.manager → Employee (reverse: Employee.reports)
type music struct {
	reg      *orm.Registry
	album    *orm.Definition
	track    *orm.Definition
	tag      *orm.Definition
	trackTag *orm.Definition
	employee *orm.Definition
}

func newMusic(t *testing.T, db orm.Querier) *music {
	t.Helper()

	m := &music{reg: orm.NewRegistry(db)}
	m.album = orm.NewDefinition("Album", "albums",
		orm.Column("id", orm.PrimaryKey(), orm.AutoIncrement()),
		orm.Column("name"),
	)
	m.track = orm.NewDefinition("Track", "tracks",
		orm.Column("id", orm.PrimaryKey(), orm.AutoIncrement()),
		orm.ForeignKeyField("album", "Album", orm.RelatedName("track_list")),
		orm.Column("title"),
		orm.ManyToManyField("tags", "Tag", "TrackTag", orm.RelatedName("tracks")),
	)
	m.tag = orm.NewDefinition("Tag", "tags",
		orm.Column("id", orm.PrimaryKey(), orm.AutoIncrement()),
		orm.Column("name"),
	)
	m.trackTag = orm.NewDefinition("TrackTag", "track_tags",
		orm.Column("id", orm.PrimaryKey(), orm.AutoIncrement()),
		orm.ForeignKeyField("track", "Track", orm.RelatedName("track_tags")),
		orm.ForeignKeyField("tag", "Tag", orm.RelatedName("tag_tracks")),
	)
	m.employee = orm.NewDefinition("Employee", "employees",
		orm.Column("id", orm.PrimaryKey(), orm.AutoIncrement()),
		orm.Column("name"),
		orm.ForeignKeyField("manager", "Employee", orm.RelatedName("reports")),
		orm.ForeignKeyField("mentor", "Employee", orm.RelatedName("mentees")),
	)

	// Track before Album and Tag: targets resolve lazily by name.
	if err := m.reg.Register(m.track, m.trackTag); err != nil {
		t.Fatalf("Register track: %v", err)
	}
	if err := m.reg.Register(m.album, m.tag, m.employee); err != nil {
		t.Fatalf("Register rest: %v", err)
	}
	if err := m.reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return m
}
