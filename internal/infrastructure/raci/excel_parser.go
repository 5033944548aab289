package raci

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

// PreferredSheet is read when present, otherwise the first sheet is used
const PreferredSheet = "RACI"

var ErrEmptyMatrix = errors.New("raci workbook has no tasks")

// ExcelParser reads a RACI matrix laid out as
//
//	Stage | Task | <role> | <role> | ...
//
// with one task per row. A blank stage cell continues the stage above it.
type ExcelParser struct {
	logger *zap.Logger
}

// NewExcelParser creates a new RACI workbook parser
func NewExcelParser(logger *zap.Logger) *ExcelParser {
	return &ExcelParser{logger: logger}
}

// Parse implements port.RaciParser
func (p *ExcelParser) Parse(r io.Reader) (entity.RaciMatrix, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return entity.RaciMatrix{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList())
	if sheet == "" {
		return entity.RaciMatrix{}, ErrEmptyMatrix
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return entity.RaciMatrix{}, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return entity.RaciMatrix{}, ErrEmptyMatrix
	}

	roles, err := parseHeader(rows[0])
	if err != nil {
		return entity.RaciMatrix{}, err
	}

	var matrix entity.RaciMatrix
	stage := ""
	for i, row := range rows[1:] {
		rowNum := i + 2
		if cell(row, 0) != "" {
			stage = cell(row, 0)
		}
		taskName := cell(row, 1)
		if taskName == "" {
			continue
		}
		if stage == "" {
			return entity.RaciMatrix{}, fmt.Errorf("row %d: task %q has no stage", rowNum, taskName)
		}

		task := entity.RaciTask{Name: taskName, Assignments: make(map[entity.RoleCode]entity.RaciDesignation)}
		for col, role := range roles {
			raw := cell(row, col+2)
			if raw == "" {
				continue
			}
			d, err := entity.ParseRaciDesignation(raw)
			if err != nil {
				ref, _ := excelize.CoordinatesToCellName(col+3, rowNum)
				return entity.RaciMatrix{}, fmt.Errorf("cell %s: %w", ref, err)
			}
			task.Assignments[role] = d
		}

		n := len(matrix.Stages)
		if n == 0 || matrix.Stages[n-1].Name != stage {
			matrix.Stages = append(matrix.Stages, entity.RaciStage{Name: stage})
			n++
		}
		matrix.Stages[n-1].Tasks = append(matrix.Stages[n-1].Tasks, task)
	}

	if len(matrix.Stages) == 0 {
		return entity.RaciMatrix{}, ErrEmptyMatrix
	}

	p.logger.Info("RACI workbook parsed",
		zap.String("sheet", sheet),
		zap.Int("stages", len(matrix.Stages)),
		zap.Int("roles", len(roles)))
	return matrix, nil
}

func pickSheet(sheets []string) string {
	for _, s := range sheets {
		if strings.EqualFold(s, PreferredSheet) {
			return s
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

func parseHeader(header []string) ([]entity.RoleCode, error) {
	if len(header) < 3 {
		return nil, fmt.Errorf("header needs Stage, Task and at least one role column")
	}

	roles := make([]entity.RoleCode, 0, len(header)-2)
	seen := make(map[entity.RoleCode]bool)
	for i, raw := range header[2:] {
		role, err := entity.ParseRoleCode(raw)
		if err != nil {
			ref, _ := excelize.CoordinatesToCellName(i+3, 1)
			return nil, fmt.Errorf("header %s: %w", ref, err)
		}
		if seen[role] {
			return nil, fmt.Errorf("duplicate role column %q", role)
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var _ port.RaciParser = (*ExcelParser)(nil)
