package orm

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mickamy/relmap/internal/naming"
)

// structField is the parsed mapping of one exported struct field.
type structField struct {
	index  int
	name   string // definition field name
	column string
	pk     bool
	auto   bool
	null   bool

	rel        string // "", "belongs_to", "has_many", "many_to_many"
	target     reflect.Type
	foreignKey string
	through    string
	related    string
}

type structInfo struct {
	typ    reflect.Type
	fields []structField
}

var structCache sync.Map // reflect.Type → *structInfo

// DefineStruct derives a Definition from the struct T and registers it.
//
// Columns come from `db:"column,primaryKey,autoIncrement,nullable"` tags
// (column defaults to the snake_case field name, `db:"-"` skips the field;
// a field named ID is the autoincrement primary key unless another field
// is tagged). Relations come from `rel` tags:
//
//	Album  *Album  `rel:"belongs_to,foreign_key:album_id,related_name:track_list"`
//	Tracks []Track `rel:"has_many,foreign_key:album_id"`
//	Tags   []Tag   `rel:"many_to_many,through:AlbumTag"`
//
// The definition is named after the type; the table comes from TableNamer
// or the pluralized snake_case type name.
func DefineStruct[T any](reg *Registry) (*Definition, error) {
	rt := reflect.TypeFor[T]()
	info, err := parseStruct(rt)
	if err != nil {
		return nil, err
	}

	var fields []*Field
	for _, sf := range info.fields {
		switch sf.rel {
		case "":
			if info.ownedByForeignKey(sf.column) {
				continue
			}
			var opts []FieldOption
			if sf.pk {
				opts = append(opts, PrimaryKey())
			}
			if sf.auto {
				opts = append(opts, AutoIncrement())
			}
			if sf.null {
				opts = append(opts, Nullable())
			}
			fields = append(fields, Column(sf.name, append(opts, ColumnName(sf.column))...))
		case "belongs_to":
			opts := []FieldOption{ColumnName(sf.foreignKey)}
			if sf.related != "" {
				opts = append(opts, RelatedName(sf.related))
			}
			fields = append(fields, ForeignKeyField(sf.name, sf.target.Name(), opts...))
		case "has_many":
			fields = append(fields, HasMany(sf.name, sf.target.Name(), sf.foreignKey))
		case "many_to_many":
			var opts []FieldOption
			if sf.related != "" {
				opts = append(opts, RelatedName(sf.related))
			}
			fields = append(fields, ManyToManyField(sf.name, sf.target.Name(), sf.through, opts...))
		}
	}

	def := NewDefinition(rt.Name(), tableNameOf(rt), fields...)
	if err := reg.Register(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Decode copies inst into a new T, recursing into loaded relations.
// Struct fields are matched with the same tags DefineStruct reads.
func Decode[T any](inst *Instance) (T, error) {
	var out T
	if inst == nil {
		return out, nil
	}
	err := decodeInto(reflect.ValueOf(&out).Elem(), inst)
	return out, err
}

func decodeInto(dst reflect.Value, inst *Instance) error {
	info, err := parseStruct(dst.Type())
	if err != nil {
		return err
	}
	def := inst.def
	for _, sf := range info.fields {
		fv := dst.Field(sf.index)
		if sf.rel == "" {
			f, ok := def.byColumn[sf.column]
			if !ok {
				continue
			}
			if err := assignValue(fv, inst.values[f.Name]); err != nil {
				return fmt.Errorf("orm: decode %s.%s: %w", def.Name, sf.name, err)
			}
			continue
		}

		r, ok := inst.related[sf.name]
		if !ok {
			continue
		}
		switch rv := r.(type) {
		case *Instance:
			if rv == nil || fv.Kind() != reflect.Pointer {
				continue
			}
			elem := reflect.New(fv.Type().Elem())
			if err := decodeInto(elem.Elem(), rv); err != nil {
				return err
			}
			fv.Set(elem)
		case []*Instance:
			if fv.Kind() != reflect.Slice {
				continue
			}
			et := fv.Type().Elem()
			slice := reflect.MakeSlice(fv.Type(), 0, len(rv))
			for _, child := range rv {
				if et.Kind() == reflect.Pointer {
					elem := reflect.New(et.Elem())
					if err := decodeInto(elem.Elem(), child); err != nil {
						return err
					}
					slice = reflect.Append(slice, elem)
					continue
				}
				elem := reflect.New(et).Elem()
				if err := decodeInto(elem, child); err != nil {
					return err
				}
				slice = reflect.Append(slice, elem)
			}
			fv.Set(slice)
		}
	}
	return nil
}

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
)

// assignValue stores a driver value into dst, converting between
// compatible scalar kinds.
func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(v) //nolint:forcetypeassert // checked above
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assignValue(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	// text protocols hand out every scalar as []byte
	if b, ok := v.([]byte); ok && dst.Kind() != reflect.Slice {
		v = string(b)
	}
	src := reflect.ValueOf(v)
	if s, ok := v.(string); ok && dst.Type() == timeType {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if isNumeric(src.Kind()) && isNumeric(dst.Kind()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	if src.Kind() == reflect.String && dst.Kind() == reflect.String {
		dst.SetString(src.String())
		return nil
	}
	if s, ok := v.(string); ok && isNumeric(dst.Kind()) {
		return parseNumeric(dst, s)
	}
	if src.Kind() == reflect.Int64 && dst.Kind() == reflect.Bool {
		dst.SetBool(src.Int() != 0)
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
}

func parseNumeric(dst reflect.Value, s string) error {
	switch dst.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		dst.SetFloat(f)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dst.Type().Bits())
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		dst.SetUint(n)
	default:
		n, err := strconv.ParseInt(s, 10, dst.Type().Bits())
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		dst.SetInt(n)
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func parseStruct(rt reflect.Type) (*structInfo, error) {
	if cached, ok := structCache.Load(rt); ok {
		return cached.(*structInfo), nil //nolint:forcetypeassert // cache holds one type
	}
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("orm: %s is not a struct", rt)
	}

	info := &structInfo{typ: rt}
	explicitPK := false
	for i := range rt.NumField() {
		sf, skip, err := parseStructField(rt.Field(i))
		if err != nil {
			return nil, fmt.Errorf("orm: %s.%s: %w", rt.Name(), rt.Field(i).Name, err)
		}
		if skip {
			continue
		}
		sf.index = i
		if sf.pk {
			explicitPK = true
		}
		info.fields = append(info.fields, sf)
	}
	if !explicitPK {
		for n := range info.fields {
			f := &info.fields[n]
			if f.rel == "" && rt.Field(f.index).Name == "ID" {
				f.pk = true
				f.auto = isInteger(rt.Field(f.index).Type.Kind())
			}
		}
	}

	actual, _ := structCache.LoadOrStore(rt, info)
	return actual.(*structInfo), nil //nolint:forcetypeassert // cache holds one type
}

func parseStructField(field reflect.StructField) (structField, bool, error) {
	if field.Anonymous || !field.IsExported() {
		return structField{}, true, nil
	}

	sf := structField{
		name:   naming.CamelToSnake(field.Name),
		column: naming.CamelToSnake(field.Name),
	}

	if relTag, ok := field.Tag.Lookup("rel"); ok {
		return parseRelTag(field, sf, relTag)
	}

	if dbTag, ok := field.Tag.Lookup("db"); ok {
		if dbTag == "-" {
			return structField{}, true, nil
		}
		parts := strings.Split(dbTag, ",")
		if parts[0] != "" {
			sf.column = parts[0]
			sf.name = parts[0]
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "primaryKey":
				sf.pk = true
			case "autoIncrement":
				sf.auto = true
			case "nullable":
				sf.null = true
			}
		}
	}
	return sf, false, nil
}

func parseRelTag(field reflect.StructField, sf structField, tag string) (structField, bool, error) {
	parts := strings.Split(tag, ",")
	sf.rel = parts[0]
	for _, opt := range parts[1:] {
		k, v, _ := strings.Cut(opt, ":")
		switch k {
		case "foreign_key":
			sf.foreignKey = v
		case "through":
			sf.through = v
		case "related_name":
			sf.related = v
		}
	}

	t := field.Type
	switch sf.rel {
	case "belongs_to":
		if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			return sf, false, fmt.Errorf("belongs_to needs a pointer to a struct, got %s", t)
		}
		sf.target = t.Elem()
		if sf.foreignKey == "" {
			sf.foreignKey = naming.ForeignKey(sf.name)
		}
	case "has_many", "many_to_many":
		if t.Kind() != reflect.Slice {
			return sf, false, fmt.Errorf("%s needs a slice, got %s", sf.rel, t)
		}
		et := t.Elem()
		if et.Kind() == reflect.Pointer {
			et = et.Elem()
		}
		sf.target = et
		if sf.rel == "has_many" && sf.foreignKey == "" {
			return sf, false, fmt.Errorf("has_many needs a foreign_key")
		}
		if sf.rel == "many_to_many" && sf.through == "" {
			return sf, false, fmt.Errorf("many_to_many needs a through definition")
		}
	default:
		return sf, false, fmt.Errorf("unknown relation %q", sf.rel)
	}
	return sf, false, nil
}

// ownedByForeignKey reports whether a belongs_to relation stores its key
// in column, in which case the plain field mapping the column is dropped.
func (s *structInfo) ownedByForeignKey(column string) bool {
	for _, f := range s.fields {
		if f.rel == "belongs_to" && f.foreignKey == column {
			return true
		}
	}
	return false
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
