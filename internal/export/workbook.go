package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]any
}

type Workbook struct {
	File *excelize.File
}

// NewWorkbook собирает книгу из листов: жирный заголовок, автофильтр
// по первой строке, ширина колонок по содержимому.
func NewWorkbook(sheets []SheetSpec) (*Workbook, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook: no sheets")
	}
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			// стандартный Sheet1 переименовываем, а не удаляем: пустую книгу excelize не сохранит
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", name, err)
		}

		for col, h := range s.Header {
			cell := fmt.Sprintf("%s1", colName(col+1))
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		end := colName(len(s.Header)) + "1"
		_ = f.SetCellStyle(name, "A1", end, bold)
		_ = f.AutoFilter(name, "A1:"+end, nil)

		for r, row := range s.Rows {
			for c, val := range row {
				cell := fmt.Sprintf("%s%d", colName(c+1), r+2)
				if err := f.SetCellValue(name, cell, val); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
		}
		setWidths(f, name, s)
	}
	f.SetActiveSheet(0)
	return &Workbook{File: f}, nil
}

func (w *Workbook) Write(out io.Writer) error {
	_, err := w.File.WriteTo(out)
	return err
}

func (w *Workbook) Close() error { return w.File.Close() }

// эвристическая ширина: по заголовку и первым 50 строкам
func setWidths(f *excelize.File, sheet string, s SheetSpec) {
	for c := 1; c <= len(s.Header); c++ {
		maxim := visualLen(s.Header[c-1]) + 2
		for r := 0; r < min(50, len(s.Rows)); r++ {
			if c-1 >= len(s.Rows[r]) {
				continue
			}
			if l := visualLen(fmt.Sprint(s.Rows[r][c-1])); l > maxim {
				maxim = l
			}
		}
		w := float64(maxim) * 1.1
		if w < 10 {
			w = 10
		}
		if w > 60 {
			w = 60
		}
		_ = f.SetColWidth(sheet, colName(c), colName(c), w)
	}
}

// 1 -> A; 27 -> AA
func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

func visualLen(s string) int {
	n := 0
	for _, r := range s {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}
