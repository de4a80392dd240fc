package orm_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mickamy/relmap/orm"
)

func TestFromRowRootOnly(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{"id": 1, "name": "Jamaica"}

	album, err := orm.FromRow(m.album, row, nil, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	want := map[string]any{"id": 1, "name": "Jamaica"}
	if got := album.ToMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToMap = %v, want %v", got, want)
	}
	if album.IsLoaded("track_list") {
		t.Error("track_list should not be loaded")
	}
}

func TestFromRowReverseForeignKey(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{
		"id": 1, "name": "Jamaica",
		"tracks_id": 10, "tracks_title": "The Bird", "tracks_album": 1,
	}

	album, err := orm.FromRow(m.album, row, []string{"track_list"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}

	want := map[string]any{
		"id":   1,
		"name": "Jamaica",
		"track_list": []map[string]any{
			{"id": 10, "title": "The Bird", "album": 1},
		},
	}
	if got := album.ToMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToMap = %v, want %v", got, want)
	}

	tracks, err := album.RelatedList("track_list")
	if err != nil {
		t.Fatalf("RelatedList: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Definition() != m.track {
		t.Errorf("track_list = %v", tracks)
	}
}

func TestFromRowForeignKey(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{
		"id": 10, "title": "The Bird", "album": 1,
		"albums_id": 1, "albums_name": "Jamaica",
	}

	track, err := orm.FromRow(m.track, row, []string{"album"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	album, err := track.Related("album")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if album == nil || album.Get("name") != "Jamaica" {
		t.Fatalf("album = %v", album.ToMap())
	}
	if v, _ := track.Value("album"); v != 1 {
		t.Errorf("raw album key = %v, want 1", v)
	}
}

func TestFromRowAbsentJoinYieldsNoRelatedRow(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)

	t.Run("to-one", func(t *testing.T) {
		t.Parallel()

		row := orm.MapRow{
			"id": 10, "title": "Orphan", "album": nil,
			"albums_id": nil, "albums_name": nil,
		}
		track, err := orm.FromRow(m.track, row, []string{"album"}, nil)
		if err != nil {
			t.Fatalf("FromRow: %v", err)
		}
		if !track.IsLoaded("album") {
			t.Fatal("album should be loaded as absent")
		}
		album, err := track.Related("album")
		if err != nil || album != nil {
			t.Errorf("Related = %v, %v; want nil, nil", album, err)
		}
	})

	t.Run("to-many", func(t *testing.T) {
		t.Parallel()

		row := orm.MapRow{
			"id": 1, "name": "Empty",
			"tracks_id": nil, "tracks_title": nil, "tracks_album": nil,
		}
		album, err := orm.FromRow(m.album, row, []string{"track_list"}, nil)
		if err != nil {
			t.Fatalf("FromRow: %v", err)
		}
		tracks, _ := album.RelatedList("track_list")
		if tracks == nil || len(tracks) != 0 {
			t.Errorf("track_list = %#v, want empty collection", tracks)
		}
	})

	t.Run("root", func(t *testing.T) {
		t.Parallel()

		album, err := orm.FromRow(m.album, orm.MapRow{"id": nil, "name": nil}, nil, nil)
		if err != nil || album != nil {
			t.Errorf("FromRow = %v, %v; want nil, nil", album, err)
		}
	})
}

func TestFromRowManyToManyUsesThroughTable(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	a := orm.NewAliases()
	row := orm.MapRow{
		"id": 10, "title": "The Bird", "album": 1,
		"tags_id": 3, "tags_name": "reggae",
	}

	track, err := orm.FromRow(m.track, row, []string{"tags"}, a)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	tags, _ := track.RelatedList("tags")
	if len(tags) != 1 || tags[0].Get("name") != "reggae" {
		t.Fatalf("tags = %v", track.ToMap()["tags"])
	}

	through, ok := a.Lookup(orm.JoinEdge{From: "tracks", Relation: "tags", To: "track_tags"})
	if !ok || through != "track_tags" {
		t.Fatalf("through edge = %q, %v", through, ok)
	}
	target, ok := a.Lookup(orm.JoinEdge{From: through, Relation: "tags", To: "tags"})
	if !ok || target != "tags" {
		t.Errorf("target edge = %q, %v", target, ok)
	}
}

func TestFromRowNested(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{
		"id": 1, "name": "Jamaica",
		"tracks_id": 10, "tracks_title": "The Bird", "tracks_album": 1,
		"tags_id": 3, "tags_name": "reggae",
	}

	album, err := orm.FromRow(m.album, row, []string{"track_list__tags"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	got := album.ToMap()
	tracks := got["track_list"].([]map[string]any)
	tags := tracks[0]["tags"].([]map[string]any)
	if tags[0]["name"] != "reggae" {
		t.Errorf("nested tags = %v", tags)
	}
}

func TestFromRowSelfJoin(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{
		"id": 1, "name": "Ada", "manager": 2, "mentor": 3,
		"employees_2_id": 2, "employees_2_name": "Grace", "employees_2_manager": nil, "employees_2_mentor": nil,
		"employees_3_id": 3, "employees_3_name": "Edsger", "employees_3_manager": 2, "employees_3_mentor": nil,
	}

	ada, err := orm.FromRow(m.employee, row, []string{"manager", "mentor"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	manager, _ := ada.Related("manager")
	mentor, _ := ada.Related("mentor")
	if manager.Get("name") != "Grace" {
		t.Errorf("manager = %v", manager.ToMap())
	}
	if mentor.Get("name") != "Edsger" {
		t.Errorf("mentor = %v", mentor.ToMap())
	}
}

func TestFromRowOrderFollowsTree(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	// mentor named first: it takes the first free prefix
	row := orm.MapRow{
		"id": 1, "name": "Ada", "manager": 2, "mentor": 3,
		"employees_2_id": 3, "employees_2_name": "Edsger", "employees_2_manager": nil, "employees_2_mentor": nil,
		"employees_3_id": 2, "employees_3_name": "Grace", "employees_3_manager": nil, "employees_3_mentor": nil,
	}

	ada, err := orm.FromRow(m.employee, row, []string{"mentor", "manager"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	mentor, _ := ada.Related("mentor")
	if mentor.Get("name") != "Edsger" {
		t.Errorf("mentor = %v", mentor.ToMap())
	}
}

func TestFromRowMappingErrors(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{"id": 10, "title": "The Bird", "album": 1}

	tests := []struct {
		name  string
		paths []string
	}{
		{"unknown field", []string{"cover"}},
		{"not a relation", []string{"title"}},
		{"missing joined columns", []string{"album"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inst, err := orm.FromRow(m.track, row, tt.paths, nil)
			if !errors.Is(err, orm.ErrMapping) {
				t.Fatalf("err = %v, want ErrMapping", err)
			}
			if inst != nil {
				t.Errorf("got partial instance %v", inst.ToMap())
			}
			var me *orm.MappingError
			if !errors.As(err, &me) || me.Entity == "" {
				t.Errorf("err %v is not a *MappingError with an entity", err)
			}
		})
	}
}

func TestFromRowSealedAliasesRejectUnplannedJoin(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	a := orm.NewAliases()
	a.Root("tracks")
	a.Seal()

	row := orm.MapRow{"id": 10, "title": "x", "album": 1, "albums_id": 1, "albums_name": "y"}
	_, err := orm.FromRow(m.track, row, []string{"album"}, a)
	if !errors.Is(err, orm.ErrUnresolvedAlias) {
		t.Errorf("err = %v, want ErrUnresolvedAlias", err)
	}
}

func TestMergeInstances(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	rows := []orm.MapRow{
		{"id": 1, "name": "Jamaica", "tracks_id": 10, "tracks_title": "The Bird", "tracks_album": 1},
		{"id": 1, "name": "Jamaica", "tracks_id": 11, "tracks_title": "The Waters", "tracks_album": 1},
		{"id": 2, "name": "Empty", "tracks_id": nil, "tracks_title": nil, "tracks_album": nil},
		{"id": 1, "name": "Jamaica", "tracks_id": 10, "tracks_title": "The Bird", "tracks_album": 1},
	}

	mat := orm.NewMaterializer(nil)
	tree := orm.GroupRelations([]string{"track_list"})
	var items []*orm.Instance
	for _, r := range rows {
		inst, err := mat.Materialize(m.album, r, tree, nil)
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}
		items = append(items, inst)
	}

	merged := orm.MergeInstances(items)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	tracks, _ := merged[0].RelatedList("track_list")
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tracks))
	}
	if tracks[0].Get("title") != "The Bird" || tracks[1].Get("title") != "The Waters" {
		t.Errorf("track order = %v, %v", tracks[0].Get("title"), tracks[1].Get("title"))
	}
	empty, _ := merged[1].RelatedList("track_list")
	if len(empty) != 0 {
		t.Errorf("album 2 tracks = %d, want 0", len(empty))
	}
}

func TestDefinitionNewRejectsUnknownField(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	_, err := m.album.New(map[string]any{"name": "x", "genre": "dub"})
	if !errors.Is(err, orm.ErrMapping) {
		t.Errorf("err = %v, want ErrMapping", err)
	}
}

func TestInstanceRelatedPlaceholder(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	track, err := m.track.New(map[string]any{"id": 10, "title": "The Bird", "album": 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	album, err := track.Related("album")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if album.PK() != 1 || album.Definition() != m.album {
		t.Errorf("placeholder = %v", album.ToMap())
	}
	if _, ok := album.Value("name"); ok {
		t.Error("placeholder should only carry the primary key")
	}
}

func TestInstanceSetRelatedInstance(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	album, _ := m.album.New(map[string]any{"id": 7, "name": "Jamaica"})
	track, _ := m.track.New(map[string]any{"title": "The Bird"})

	if err := track.Set("album", album); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := track.Value("album"); v != 7 {
		t.Errorf("album key = %v, want 7", v)
	}

	tag, _ := m.tag.New(map[string]any{"id": 1})
	if err := track.Set("album", tag); !errors.Is(err, orm.ErrMapping) {
		t.Errorf("Set(wrong definition) err = %v, want ErrMapping", err)
	}
}

func TestRelatedListReturnsCopy(t *testing.T) {
	t.Parallel()

	m := newMusic(t, nil)
	row := orm.MapRow{
		"id": 1, "name": "Jamaica",
		"tracks_id": 10, "tracks_title": "The Bird", "tracks_album": 1,
	}
	album, err := orm.FromRow(m.album, row, []string{"track_list"}, nil)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}

	list, _ := album.RelatedList("track_list")
	tag, _ := m.tag.New(map[string]any{"id": 3})
	list[0] = tag

	again, _ := album.RelatedList("track_list")
	if again[0].Definition() != m.track {
		t.Errorf("writing the returned slice changed the instance: %v", again[0].ToMap())
	}
}
