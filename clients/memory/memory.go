package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artie-labs/tenantsync/clients/snowflake/dialect"
	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/models"
)

var _ destination.Warehouse = (*Store)(nil)

type table struct {
	database string
	schema   string
	name     string
	columns  []string
	rows     [][]any
}

func (t *table) columnIndex(column string) int {
	return slices.IndexFunc(t.columns, func(c string) bool { return strings.EqualFold(c, column) })
}

type registry struct {
	nextID  int64
	tenants []models.Tenant
}

// Store is a warehouse that lives in memory. It follows Snowflake's naming rules so it can stand in for it in dry runs.
type Store struct {
	mu         sync.Mutex
	tables     map[string]*table
	schemas    map[string]bool
	registries map[string]*registry
}

func NewStore() *Store {
	return &Store{
		tables:     make(map[string]*table),
		schemas:    make(map[string]bool),
		registries: make(map[string]*registry),
	}
}

func tableKey(tableID sql.TableIdentifier) string {
	return tableID.FullyQualifiedName()
}

func schemaKey(database, schema string) string {
	return strings.ToUpper(database) + "." + strings.ToUpper(schema)
}

func tableDoesNotExist(tableID sql.TableIdentifier) error {
	return fmt.Errorf("table '%s' does not exist or not authorized", tableID.FullyQualifiedName())
}

func (s *Store) Dialect() sql.Dialect {
	return dialect.SnowflakeDialect{}
}

func (s *Store) IdentifierFor(database, schema, table string) sql.TableIdentifier {
	return dialect.NewTableIdentifier(database, schema, table)
}

// AddSchema registers an empty schema, tables also register their schema when they are created.
func (s *Store) AddSchema(database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schemas[schemaKey(database, schema)] = true
}

// Table returns a copy of the contents of [tableID].
func (s *Store) Table(tableID sql.TableIdentifier) (*batch.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableKey(tableID)]
	if !ok {
		return nil, false
	}

	return batch.MustFromRows(t.name, t.columns, t.rows), true
}

func (s *Store) createTable(tableID sql.TableIdentifier, columns []string) *table {
	upperColumns := make([]string, len(columns))
	for i, column := range columns {
		upperColumns[i] = strings.ToUpper(column)
	}

	t := &table{
		database: strings.ToUpper(tableID.Database()),
		schema:   strings.ToUpper(tableID.Schema()),
		name:     strings.ToUpper(tableID.Table()),
		columns:  upperColumns,
	}

	s.tables[tableKey(tableID)] = t
	s.schemas[schemaKey(tableID.Database(), tableID.Schema())] = true
	return t
}

func (s *Store) lookup(tableID sql.TableIdentifier) (*table, error) {
	t, ok := s.tables[tableKey(tableID)]
	if !ok {
		return nil, tableDoesNotExist(tableID)
	}
	return t, nil
}

func (s *Store) TableExists(_ context.Context, tableID sql.TableIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tables[tableKey(tableID)]
	return ok, nil
}

func (s *Store) DescribeTable(_ context.Context, tableID sql.TableIdentifier) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(tableID)
	if err != nil {
		return nil, err
	}

	return slices.Clone(t.columns), nil
}

func (s *Store) DropTable(_ context.Context, tableID sql.TableIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, tableKey(tableID))
	return nil
}

func (s *Store) CreateTableFromBatch(_ context.Context, tableID sql.TableIdentifier, b *batch.Batch) (int64, error) {
	if b.NumColumns() == 0 {
		return 0, fmt.Errorf("cannot create table %q without any columns", tableID.FullyQualifiedName())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.createTable(tableID, b.Columns())
	return appendRows(t, b)
}

// appendRows maps the batch columns onto the table by name, table columns missing from the batch are left nil.
func appendRows(t *table, b *batch.Batch) (int64, error) {
	positions := make([]int, b.NumColumns())
	for i, column := range b.Columns() {
		positions[i] = t.columnIndex(column)
		if positions[i] < 0 {
			return 0, fmt.Errorf("column %q does not exist in table %q", column, t.name)
		}
	}

	for _, row := range b.Rows() {
		newRow := make([]any, len(t.columns))
		for i, value := range row {
			newRow[positions[i]] = value
		}
		t.rows = append(t.rows, newRow)
	}

	return int64(b.NumRows()), nil
}

// project returns the positions of [columns] in [t].
func project(t *table, columns []string) ([]int, error) {
	positions := make([]int, len(columns))
	for i, column := range columns {
		positions[i] = t.columnIndex(column)
		if positions[i] < 0 {
			return nil, fmt.Errorf("column %q does not exist in table %q", column, t.name)
		}
	}
	return positions, nil
}

func (s *Store) OverwriteFromTable(_ context.Context, targetID, sourceID sql.TableIdentifier, columns []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.lookup(targetID)
	if err != nil {
		return 0, err
	}

	source, err := s.lookup(sourceID)
	if err != nil {
		return 0, err
	}

	previous := target.rows
	target.rows = nil
	inserted, err := copyRows(target, source, columns, nil)
	if err != nil {
		target.rows = previous
		return 0, err
	}

	return inserted, nil
}

// copyRows appends the [columns] of every source row into [target], [extra] is set on every new row.
func copyRows(target, source *table, columns []string, extra map[int]any) (int64, error) {
	sourcePositions, err := project(source, columns)
	if err != nil {
		return 0, err
	}

	targetPositions, err := project(target, columns)
	if err != nil {
		return 0, err
	}

	for _, row := range source.rows {
		newRow := make([]any, len(target.columns))
		for i, position := range sourcePositions {
			newRow[targetPositions[i]] = row[position]
		}
		for position, value := range extra {
			newRow[position] = value
		}
		target.rows = append(target.rows, newRow)
	}

	return int64(len(source.rows)), nil
}

func (s *Store) MergeFromTable(_ context.Context, targetID, sourceID sql.TableIdentifier, keys, columns []string) (int64, error) {
	if len(keys) == 0 {
		return 0, fmt.Errorf("cannot merge into %q without keys", targetID.FullyQualifiedName())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.lookup(targetID)
	if err != nil {
		return 0, err
	}

	source, err := s.lookup(sourceID)
	if err != nil {
		return 0, err
	}

	targetKeys, err := project(target, keys)
	if err != nil {
		return 0, err
	}

	sourceKeys, err := project(source, keys)
	if err != nil {
		return 0, err
	}

	sourcePositions, err := project(source, columns)
	if err != nil {
		return 0, err
	}

	targetPositions, err := project(target, columns)
	if err != nil {
		return 0, err
	}

	existing := make(map[string]int)
	for i, row := range target.rows {
		if key, ok := rowKey(row, targetKeys); ok {
			existing[key] = i
		}
	}

	var affected int64
	for _, row := range source.rows {
		key, ok := rowKey(row, sourceKeys)
		idx, matched := existing[key]
		if !ok || !matched {
			newRow := make([]any, len(target.columns))
			for i, position := range sourcePositions {
				newRow[targetPositions[i]] = row[position]
			}
			target.rows = append(target.rows, newRow)
			if ok {
				existing[key] = len(target.rows) - 1
			}
		} else {
			for i, position := range sourcePositions {
				target.rows[idx][targetPositions[i]] = row[position]
			}
		}
		affected++
	}

	return affected, nil
}

// rowKey returns false when any key is nil, since NULL never matches in a MERGE.
func rowKey(row []any, positions []int) (string, bool) {
	parts := make([]string, len(positions))
	for i, position := range positions {
		if row[position] == nil {
			return "", false
		}
		parts[i] = normalize(row[position])
	}
	return strings.Join(parts, "\x00"), true
}

func (s *Store) CreateTableLike(_ context.Context, targetID, sourceID sql.TableIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[tableKey(targetID)]; ok {
		return nil
	}

	source, err := s.lookup(sourceID)
	if err != nil {
		return err
	}

	s.createTable(targetID, source.columns)
	return nil
}

func (s *Store) AddColumn(_ context.Context, tableID sql.TableIdentifier, column string, _ batch.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(tableID)
	if err != nil {
		return err
	}

	if t.columnIndex(column) >= 0 {
		return nil
	}

	t.columns = append(t.columns, strings.ToUpper(column))
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], nil)
	}
	return nil
}

func (s *Store) DistinctInt64s(_ context.Context, tableID sql.TableIdentifier, column string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(tableID)
	if err != nil {
		return nil, err
	}

	idx := t.columnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %q does not exist in table %q", column, t.name)
	}

	seen := make(map[int64]bool)
	var values []int64
	for _, row := range t.rows {
		value, ok := toInt64(row[idx])
		if !ok || seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}

	slices.Sort(values)
	return values, nil
}

func (s *Store) InsertTenantRows(_ context.Context, args destination.InsertTenantRowsArgs) (destination.InsertTenantRowsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.lookup(args.TargetID)
	if err != nil {
		return destination.InsertTenantRowsResult{}, err
	}

	source, err := s.lookup(args.SourceID)
	if err != nil {
		return destination.InsertTenantRowsResult{}, err
	}

	tenantIdx := target.columnIndex(args.TenantColumn)
	if tenantIdx < 0 {
		return destination.InsertTenantRowsResult{}, fmt.Errorf("column %q does not exist in table %q", args.TenantColumn, target.name)
	}

	for _, row := range target.rows {
		if value, ok := toInt64(row[tenantIdx]); ok && value == args.TenantID {
			return destination.InsertTenantRowsResult{AlreadyPresent: true}, nil
		}
	}

	var extra map[int]any
	if args.InjectTenantColumn {
		extra = map[int]any{tenantIdx: args.TenantID}
	} else {
		sourceIdx := source.columnIndex(args.TenantColumn)
		if sourceIdx < 0 {
			return destination.InsertTenantRowsResult{}, fmt.Errorf("column %q does not exist in table %q", args.TenantColumn, source.name)
		}

		var foreign int64
		for _, row := range source.rows {
			if value, ok := toInt64(row[sourceIdx]); !ok || value != args.TenantID {
				foreign++
			}
		}

		if foreign > 0 {
			return destination.InsertTenantRowsResult{}, destination.TenantColumnMismatchError{
				Table:    args.SourceID.FullyQualifiedName(),
				Column:   args.TenantColumn,
				TenantID: args.TenantID,
				Rows:     foreign,
			}
		}
	}

	inserted, err := copyRows(target, source, args.Columns, extra)
	if err != nil {
		return destination.InsertTenantRowsResult{}, err
	}

	return destination.InsertTenantRowsResult{Inserted: inserted}, nil
}

func (s *Store) TagTenantRows(_ context.Context, tableID sql.TableIdentifier, tenantColumn string, tenantID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(tableID)
	if err != nil {
		return 0, err
	}

	idx := t.columnIndex(tenantColumn)
	if idx < 0 {
		return 0, fmt.Errorf("column %q does not exist in table %q", tenantColumn, t.name)
	}

	var tagged int64
	for _, row := range t.rows {
		if value, ok := toInt64(row[idx]); !ok || value != tenantID {
			row[idx] = tenantID
			tagged++
		}
	}
	return tagged, nil
}

func (s *Store) ListSchemas(_ context.Context, database string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := strings.ToUpper(database) + "."
	var schemas []string
	for key := range s.schemas {
		if schema, ok := strings.CutPrefix(key, prefix); ok {
			schemas = append(schemas, schema)
		}
	}

	sort.Strings(schemas)
	return schemas, nil
}

func (s *Store) ListTables(_ context.Context, database, schema string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tables []string
	for _, t := range s.tables {
		if strings.EqualFold(t.database, database) && strings.EqualFold(t.schema, schema) {
			tables = append(tables, t.name)
		}
	}

	sort.Strings(tables)
	return tables, nil
}

func (s *Store) EnsureRegistryTable(_ context.Context, tableID sql.TableIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registries[tableKey(tableID)]; !ok {
		s.registries[tableKey(tableID)] = &registry{nextID: 1}
	}
	return nil
}

func (s *Store) ListTenants(_ context.Context, tableID sql.TableIdentifier, database string) ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registries[tableKey(tableID)]
	if !ok {
		return nil, tableDoesNotExist(tableID)
	}

	var tenants []models.Tenant
	for _, tenant := range reg.tenants {
		if strings.EqualFold(tenant.Database, database) {
			tenants = append(tenants, tenant)
		}
	}
	return tenants, nil
}

func (s *Store) InsertTenantIfAbsent(_ context.Context, tableID sql.TableIdentifier, tenant models.Tenant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registries[tableKey(tableID)]
	if !ok {
		return false, tableDoesNotExist(tableID)
	}

	for _, existing := range reg.tenants {
		if strings.EqualFold(existing.Database, tenant.Database) && strings.EqualFold(existing.Schema, tenant.Schema) {
			return false, nil
		}
	}

	tenant.ID = reg.nextID
	reg.nextID++
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}
	tenant.CreatedAt = time.Now().UTC()
	reg.tenants = append(reg.tenants, tenant)
	return true, nil
}

// RemoveTenant deletes a registry row, identifiers are not handed out again.
func (s *Store) RemoveTenant(tableID sql.TableIdentifier, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg, ok := s.registries[tableKey(tableID)]; ok {
		reg.tenants = slices.DeleteFunc(reg.tenants, func(tenant models.Tenant) bool { return tenant.ID == id })
	}
}
