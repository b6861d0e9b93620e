package binder

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	parsertypes "github.com/pingcap/tidb/pkg/parser/types"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/planner"
	"birchdb/internal/types"
)

func (b *Binder) bindCreateTable(stmt *ast.CreateTableStmt) (*planner.LogicalPlan, error) {
	columns := make([]*catalog.Column, 0, len(stmt.Cols))
	byName := make(map[string]*catalog.Column, len(stmt.Cols))
	for _, def := range stmt.Cols {
		logicalType, err := convertFieldType(def.Tp)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", def.Name.Name.O, err)
		}
		col := catalog.NewColumn(def.Name.Name.O, true, logicalType)
		for _, option := range def.Options {
			switch option.Tp {
			case ast.ColumnOptionPrimaryKey:
				col.PrimaryKey = true
				col.Nullable = false
			case ast.ColumnOptionNotNull:
				col.Nullable = false
			case ast.ColumnOptionNull:
				col.Nullable = true
			case ast.ColumnOptionUniqKey:
				col.Unique = true
			}
		}
		columns = append(columns, col)
		byName[def.Name.Name.L] = col
	}

	// Table-level constraints override column shorthand.
	var uniqueKeys [][]*catalog.Column
	for _, constraint := range stmt.Constraints {
		switch constraint.Tp {
		case ast.ConstraintPrimaryKey:
			for _, key := range constraint.Keys {
				col, ok := byName[key.Column.Name.L]
				if !ok {
					return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, key.Column.Name.O)
				}
				col.PrimaryKey = true
				col.Nullable = false
			}
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			var cols []*catalog.Column
			for _, key := range constraint.Keys {
				col, ok := byName[key.Column.Name.L]
				if !ok {
					return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, key.Column.Name.O)
				}
				cols = append(cols, col)
			}
			if len(cols) == 1 {
				cols[0].Unique = true
			} else {
				uniqueKeys = append(uniqueKeys, cols)
			}
		}
	}

	table, err := catalog.NewTable(stmt.Table.Name.O, columns)
	if err != nil {
		return nil, err
	}
	for i, cols := range uniqueKeys {
		ids := make([]types.ColumnID, len(cols))
		for j, col := range cols {
			id, _ := col.ID()
			ids[j] = id
		}
		name := fmt.Sprintf("uk_%s_%d", table.Name, i)
		if _, err := table.AddIndexMeta(name, ids, catalog.IndexUnique); err != nil {
			return nil, err
		}
	}
	return planner.NewPlan(&planner.CreateTableOperator{
		Table:       table,
		IfNotExists: stmt.IfNotExists,
	}), nil
}

func (b *Binder) bindCreateIndex(stmt *ast.CreateIndexStmt) (*planner.LogicalPlan, error) {
	table, err := b.catalog.ResolveTable(stmt.Table.Name.O)
	if err != nil {
		return nil, err
	}
	columns := make([]*catalog.Column, 0, len(stmt.IndexPartSpecifications))
	for _, part := range stmt.IndexPartSpecifications {
		if part.Column == nil {
			return nil, fmt.Errorf("%w: expression index", dberr.ErrUnsupportedStmt)
		}
		_, col := table.FindColumn(part.Column.Name.O)
		if col == nil {
			return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, part.Column.Name.O)
		}
		columns = append(columns, col)
	}
	kind := catalog.IndexNormal
	if stmt.KeyType == ast.IndexKeyTypeUnique {
		kind = catalog.IndexUnique
	}
	return planner.NewPlan(&planner.CreateIndexOperator{
		TableName:   table.Name,
		IndexName:   stmt.IndexName,
		Columns:     columns,
		IfNotExists: stmt.IfNotExists,
		Kind:        kind,
	}, planner.NewTableScan(table, true)), nil
}

func (b *Binder) bindCreateView(stmt *ast.CreateViewStmt) (*planner.LogicalPlan, error) {
	text, err := restoreNode(stmt.Select)
	if err != nil {
		return nil, err
	}
	// Bind once now so a broken definition fails at creation, not at use.
	if _, err := b.bindStatement(stmt.Select.(ast.StmtNode)); err != nil {
		return nil, err
	}
	return planner.NewPlan(&planner.CreateViewOperator{
		View:      &catalog.View{Name: stmt.ViewName.Name.O, Stmt: text},
		OrReplace: stmt.OrReplace,
	}), nil
}

func (b *Binder) bindDropTable(stmt *ast.DropTableStmt) (*planner.LogicalPlan, error) {
	if len(stmt.Tables) != 1 {
		return nil, fmt.Errorf("%w: DROP of %d tables", dberr.ErrUnsupportedStmt, len(stmt.Tables))
	}
	return planner.NewPlan(&planner.DropTableOperator{
		TableName: stmt.Tables[0].Name.O,
		IfExists:  stmt.IfExists,
	}), nil
}

// convertFieldType maps a parsed MySQL field type onto the engine's logical
// types.
func convertFieldType(tp *parsertypes.FieldType) (types.LogicalType, error) {
	unsigned := mysql.HasUnsignedFlag(tp.GetFlag())
	switch tp.GetType() {
	case mysql.TypeTiny:
		if unsigned {
			return types.UTinyint(), nil
		}
		return types.Tinyint(), nil
	case mysql.TypeShort:
		if unsigned {
			return types.USmallint(), nil
		}
		return types.Smallint(), nil
	case mysql.TypeInt24, mysql.TypeLong:
		if unsigned {
			return types.UInteger(), nil
		}
		return types.Integer(), nil
	case mysql.TypeLonglong:
		if unsigned {
			return types.UBigint(), nil
		}
		return types.Bigint(), nil
	case mysql.TypeFloat:
		return types.Float(), nil
	case mysql.TypeDouble:
		return types.Double(), nil
	case mysql.TypeNewDecimal:
		var precision, scale *uint8
		if flen := tp.GetFlen(); flen > 0 && flen != parsertypes.UnspecifiedLength {
			p := uint8(flen)
			precision = &p
		}
		if dec := tp.GetDecimal(); dec > 0 && dec != parsertypes.UnspecifiedLength {
			s := uint8(dec)
			scale = &s
		}
		return types.Decimal(precision, scale), nil
	case mysql.TypeVarchar, mysql.TypeVarString:
		if flen := tp.GetFlen(); flen > 0 && flen != parsertypes.UnspecifiedLength {
			length := uint32(flen)
			return types.Varchar(&length, types.UnitCharacters), nil
		}
		return types.Varchar(nil, types.UnitCharacters), nil
	case mysql.TypeString:
		length := uint32(1)
		if flen := tp.GetFlen(); flen > 0 && flen != parsertypes.UnspecifiedLength {
			length = uint32(flen)
		}
		return types.Char(length, types.UnitCharacters), nil
	case mysql.TypeBlob, mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		return types.Varchar(nil, types.UnitCharacters), nil
	case mysql.TypeDate:
		return types.Date(), nil
	case mysql.TypeDatetime:
		return types.DateTime(), nil
	case mysql.TypeTimestamp:
		var precision *uint8
		if dec := tp.GetDecimal(); dec > 0 && dec != parsertypes.UnspecifiedLength {
			p := uint8(dec)
			precision = &p
		}
		return types.TimeStamp(precision, false), nil
	case mysql.TypeDuration:
		var precision *uint8
		if dec := tp.GetDecimal(); dec > 0 && dec != parsertypes.UnspecifiedLength {
			p := uint8(dec)
			precision = &p
		}
		return types.Time(precision), nil
	}
	return types.SqlNull(), fmt.Errorf("%w: unsupported column type %d", dberr.ErrInvalidType, tp.GetType())
}
