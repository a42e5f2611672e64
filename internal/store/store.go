// Package store implements a JSON-table database: one JSON file per
// table, auto-incrementing row ids, write-temp-then-rename durability.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
)

// DB is a directory of per-table JSON files.
type DB struct {
	dir string

	mu     sync.Mutex // guards tables
	tables map[string]*sync.Mutex
}

// Open returns a DB rooted at dir, creating it if necessary.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create db dir: %w", err)
	}
	return &DB{dir: dir, tables: map[string]*sync.Mutex{}}, nil
}

func (d *DB) tablePath(name string) string {
	return filepath.Join(d.dir, name+".json")
}

func (d *DB) lockFor(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.tables[name]
	if !ok {
		l = &sync.Mutex{}
		d.tables[name] = l
	}
	return l
}

// readTable loads a table's file, returning an empty table (next_id 1, no
// rows) if the file doesn't exist yet — files are created lazily on first
// write.
func (d *DB) readTable(name string) (nextID uint64, rows []jsonval.Value, err error) {
	raw, err := os.ReadFile(d.tablePath(name))
	if os.IsNotExist(err) {
		return 1, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	v, err := jsonval.Decode(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("store: corrupt table %q: %w", name, err)
	}
	o := v.Object()
	nid, _ := o.Get("next_id")
	rowsVal, _ := o.Get("rows")
	id := uint64(nid.Num())
	if id == 0 {
		id = 1
	}
	return id, rowsVal.Items(), nil
}

// writeTable persists nextID/rows via write-to-temp-then-rename, so readers
// never observe a partially written file.
func (d *DB) writeTable(name string, nextID uint64, rows []jsonval.Value) error {
	o := jsonval.NewObject()
	o.Set("next_id", jsonval.Number(float64(nextID)))
	o.Set("rows", jsonval.Array(rows))
	raw := jsonval.Encode(jsonval.Obj(o))

	path := d.tablePath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CreateTable ensures a table's file exists, creating an empty one if not.
func (d *DB) CreateTable(name string) error {
	lock := d.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(d.tablePath(name)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return d.writeTable(name, 1, nil)
}

// AllTables lists every table with a file on disk, name-sorted.
func (d *DB) AllTables() []string {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name()[:len(e.Name())-len(".json")])
		}
	}
	sort.Strings(names)
	return names
}

// DropTable deletes a table's file.
func (d *DB) DropTable(name string) error {
	lock := d.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(d.tablePath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Drop removes every table file in the DB directory.
func (d *DB) Drop() error {
	for _, name := range d.AllTables() {
		if err := d.DropTable(name); err != nil {
			return err
		}
	}
	return nil
}

func rowID(row jsonval.Value) uint64 {
	idVal, ok := row.Object().Get("id")
	if !ok {
		return 0
	}
	return uint64(idVal.Num())
}

func withID(fields jsonval.Value, id uint64) jsonval.Value {
	o := jsonval.NewObject()
	o.Set("id", jsonval.Number(float64(id)))
	if fields.Object() != nil {
		for _, k := range fields.Object().Keys() {
			v, _ := fields.Object().Get(k)
			o.Set(k, v)
		}
	}
	return jsonval.Obj(o)
}

// CreateEntry assigns fields the table's next id and persists it.
func (d *DB) CreateEntry(table string, fields jsonval.Value) (uint64, error) {
	if fields.Kind() != jsonval.KindObject {
		return 0, fmt.Errorf("store: entry must be an object")
	}
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	nextID, rows, err := d.readTable(table)
	if err != nil {
		return 0, err
	}
	id := nextID
	rows = append(rows, withID(fields, id))
	if err := d.writeTable(table, id+1, rows); err != nil {
		return 0, err
	}
	return id, nil
}

// GetAll returns every row in id order, as stored.
func (d *DB) GetAll(table string) ([]jsonval.Value, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	_, rows, err := d.readTable(table)
	return rows, err
}

// GetByID returns a structural copy of the row with the given id.
func (d *DB) GetByID(table string, id uint64) (jsonval.Value, bool, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	_, rows, err := d.readTable(table)
	if err != nil {
		return jsonval.Value{}, false, err
	}
	for _, row := range rows {
		if rowID(row) == id {
			return jsonval.Clone(row), true, nil
		}
	}
	return jsonval.Value{}, false, nil
}

func matchesFilter(row, filter jsonval.Value) bool {
	fo := filter.Object()
	if fo == nil {
		return true
	}
	for _, k := range fo.Keys() {
		fv, _ := fo.Get(k)
		rv, ok := row.Object().Get(k)
		if !ok || !jsonval.Equal(rv, fv) {
			return false
		}
	}
	return true
}

// GetByFields returns every row whose fields deep-equal every field named
// in filter, ordered by id ascending.
func (d *DB) GetByFields(table string, filter jsonval.Value) ([]jsonval.Value, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	_, rows, err := d.readTable(table)
	if err != nil {
		return nil, err
	}
	var out []jsonval.Value
	for _, row := range rows {
		if matchesFilter(row, filter) {
			out = append(out, jsonval.Clone(row))
		}
	}
	return out, nil
}

func applyPatch(row, patch jsonval.Value) jsonval.Value {
	o := jsonval.NewObject()
	for _, k := range row.Object().Keys() {
		v, _ := row.Object().Get(k)
		o.Set(k, v)
	}
	if patch.Object() != nil {
		for _, k := range patch.Object().Keys() {
			v, _ := patch.Object().Get(k)
			o.Set(k, v)
		}
	}
	return jsonval.Obj(o)
}

// UpdateByID merges patch's fields into the row with the given id,
// retaining any field patch doesn't name. Reports whether a row matched.
func (d *DB) UpdateByID(table string, id uint64, patch jsonval.Value) (bool, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	nextID, rows, err := d.readTable(table)
	if err != nil {
		return false, err
	}
	updated := false
	for i, row := range rows {
		if rowID(row) == id {
			rows[i] = applyPatch(row, patch)
			updated = true
			break
		}
	}
	if !updated {
		return false, nil
	}
	return true, d.writeTable(table, nextID, rows)
}

// UpdateByFields merges patch into every row matching filter, returning the
// number of rows updated.
func (d *DB) UpdateByFields(table string, filter, patch jsonval.Value) (int, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	nextID, rows, err := d.readTable(table)
	if err != nil {
		return 0, err
	}
	count := 0
	for i, row := range rows {
		if matchesFilter(row, filter) {
			rows[i] = applyPatch(row, patch)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, d.writeTable(table, nextID, rows)
}

// DeleteByID removes the row with the given id. Reports whether a row was
// removed.
func (d *DB) DeleteByID(table string, id uint64) (bool, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	nextID, rows, err := d.readTable(table)
	if err != nil {
		return false, err
	}
	out := rows[:0:0]
	removed := false
	for _, row := range rows {
		if rowID(row) == id {
			removed = true
			continue
		}
		out = append(out, row)
	}
	if !removed {
		return false, nil
	}
	return true, d.writeTable(table, nextID, out)
}

// DeleteByFields removes every row matching filter, returning the count
// removed.
func (d *DB) DeleteByFields(table string, filter jsonval.Value) (int, error) {
	lock := d.lockFor(table)
	lock.Lock()
	defer lock.Unlock()
	nextID, rows, err := d.readTable(table)
	if err != nil {
		return 0, err
	}
	out := rows[:0:0]
	count := 0
	for _, row := range rows {
		if matchesFilter(row, filter) {
			count++
			continue
		}
		out = append(out, row)
	}
	if count == 0 {
		return 0, nil
	}
	return count, d.writeTable(table, nextID, out)
}
