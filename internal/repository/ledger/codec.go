package ledger

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

// Decode reads a ledger workbook into a production map. Legacy layouts are
// decoded with their own offsets; the validity column is dropped.
func Decode(r io.Reader) (*models.ProductionMap, error) {
	f, err := openWorkbook(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, _, err := decodeWorkbook(f)
	return m, err
}

// Encode writes m as a complete canonical workbook.
func Encode(w io.Writer, m *models.ProductionMap) error {
	f, err := encodeWorkbook(m)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func openWorkbook(r io.Reader) (*excelize.File, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", models.ErrDecode, err)
	}
	return f, nil
}

func firstSheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", models.ErrDecode)
	}
	return sheets[0], nil
}

func decodeWorkbook(f *excelize.File) (*models.ProductionMap, layout, error) {
	sheet, err := firstSheet(f)
	if err != nil {
		return nil, layout{}, err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, layout{}, fmt.Errorf("%w: read rows: %v", models.ErrDecode, err)
	}

	l, err := detectLayout(rows)
	if err != nil {
		return nil, layout{}, err
	}

	m, err := decodeRows(rows, l)
	if err != nil {
		return nil, layout{}, err
	}
	return m, l, nil
}

func decodeRows(rows [][]string, l layout) (*models.ProductionMap, error) {
	m := &models.ProductionMap{
		Date:    cellAt(rows, dateRow, l.headerCol),
		Weekday: cellAt(rows, weekdayRow, l.headerCol),
	}

	lastCategory := ""
	for r := firstCatalogRow; r < len(rows); r++ {
		if category := cellAt(rows, r, categoryCol); category != "" {
			lastCategory = category
		}

		product := cellAt(rows, r, productCol)
		if product == "" {
			continue
		}

		item := models.ProductionItem{
			Category: lastCategory,
			Product:  product,
			Losses:   parseQuantity(cellAt(rows, r, l.lossesCol)),
			Surplus:  parseQuantity(cellAt(rows, r, l.surplusCol)),
		}

		slots := make([]models.ProductionSlot, models.MaxSlots)
		present := 0
		for s := 1; s <= models.MaxSlots; s++ {
			rawQty := cellAt(rows, r, l.quantityCol(s))
			stamp := cellAt(rows, r, l.timestampCol(s))
			if rawQty != "" || stamp != "" {
				present = s
			}
			slots[s-1] = models.ProductionSlot{Quantity: parseQuantity(rawQty), Timestamp: stamp}
		}
		if present > 0 {
			item.Slots = slots[:present]
		}

		m.Items = append(m.Items, item)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseQuantity accepts integers and integral decimals ("12", "12.0"); anything else is 0.
func parseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func encodeWorkbook(m *models.ProductionMap) (*excelize.File, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeHeader(f, SheetName); err != nil {
		_ = f.Close()
		return nil, err
	}

	l := canonicalLayout
	set := cellSetter{f: f, sheet: SheetName}

	if m.Date != "" {
		set.str(l.headerCol, dateRow, m.Date)
	}
	if m.Weekday != "" {
		set.str(l.headerCol, weekdayRow, m.Weekday)
	}

	previousCategory := ""
	for idx, item := range m.Items {
		r := firstCatalogRow + idx
		if item.Category != previousCategory {
			set.str(categoryCol, r, item.Category)
			previousCategory = item.Category
		}
		set.str(productCol, r, item.Product)
		for s, slot := range item.Slots {
			set.num(l.quantityCol(s+1), r, slot.Quantity)
			if slot.Timestamp != "" {
				set.str(l.timestampCol(s+1), r, slot.Timestamp)
			}
		}
		set.num(l.lossesCol, r, item.Losses)
		set.num(l.surplusCol, r, item.Surplus)
	}

	if set.err != nil {
		_ = f.Close()
		return nil, set.err
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string) error {
	l := canonicalLayout
	set := cellSetter{f: f, sheet: sheet}

	set.str(0, dateRow, Title)
	set.str(labelCol, dateRow, "Data:")
	set.str(labelCol, weekdayRow, "Dia Semana:")

	set.str(categoryCol, headingRow, "CATEGORIA")
	set.str(productCol, headingRow, "PRODUTO")
	for s := 1; s <= models.MaxSlots; s++ {
		set.str(l.quantityCol(s), headingRow, fmt.Sprintf("Produção %d", s))
		set.str(l.quantityCol(s), subHeadingRow, "Qt")
		set.str(l.timestampCol(s), subHeadingRow, "Hr")
	}
	set.str(l.lossesCol, headingRow, "PERDAS")
	set.str(l.surplusCol, headingRow, "SOBRAS")
	if set.err != nil {
		return set.err
	}

	for s := 1; s <= models.MaxSlots; s++ {
		if err := f.MergeCell(sheet, cellName(l.quantityCol(s), headingRow), cellName(l.timestampCol(s), headingRow)); err != nil {
			return fmt.Errorf("merge slot heading: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, cellName(0, headingRow), cellName(l.surplusCol, subHeadingRow), bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	if err := f.SetColWidth(sheet, "A", "A", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 34); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

// cellSetter accumulates the first error of a run of cell writes.
type cellSetter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (s *cellSetter) str(col, row int, value string) {
	if s.err != nil {
		return
	}
	if err := s.f.SetCellStr(s.sheet, cellName(col, row), value); err != nil {
		s.err = fmt.Errorf("set cell %s: %w", cellName(col, row), err)
	}
}

func (s *cellSetter) num(col, row int, value int) {
	if s.err != nil {
		return
	}
	if err := s.f.SetCellValue(s.sheet, cellName(col, row), value); err != nil {
		s.err = fmt.Errorf("set cell %s: %w", cellName(col, row), err)
	}
}

func (s *cellSetter) blank(col, row int) {
	s.str(col, row, "")
}

func encodeToBytes(m *models.ProductionMap) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
