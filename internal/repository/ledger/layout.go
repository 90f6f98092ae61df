package ledger

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

const (
	// SheetName is the worksheet written into new ledgers.
	SheetName = "Planilha1"
	// Title is written in the first header cell.
	Title = "MAPA DE PRODUÇÃO VITRINA DE PASTELARIA"

	categoryCol = 0
	productCol  = 1
	labelCol    = 9

	dateRow         = 0
	weekdayRow      = 1
	headingRow      = 3
	subHeadingRow   = 4
	firstCatalogRow = 5
)

// layout fixes the column offsets of one ledger format. Offsets are 0-based.
type layout struct {
	name         string
	firstSlotCol int
	lossesCol    int
	surplusCol   int
	headerCol    int
}

var (
	canonicalLayout = layout{name: "canonical", firstSlotCol: 2, lossesCol: 12, surplusCol: 13, headerCol: 10}
	// legacyLayout carries a validity column before the slot pairs.
	legacyLayout = layout{name: "legacy-validity", firstSlotCol: 3, lossesCol: 13, surplusCol: 14, headerCol: 13}
)

func (l layout) quantityCol(slot int) int {
	return l.firstSlotCol + (slot-1)*2
}

func (l layout) timestampCol(slot int) int {
	return l.quantityCol(slot) + 1
}

// dataCols lists every column cleared by Clear.
func (l layout) dataCols() []int {
	cols := make([]int, 0, models.MaxSlots*2+2)
	for col := l.firstSlotCol; col <= l.surplusCol; col++ {
		cols = append(cols, col)
	}
	return cols
}

// detectLayout probes the sub-heading row: the canonical layout has "Qt" under
// the first slot at column 2, the legacy layout keeps that cell for the
// validity heading and starts the pairs at column 3.
func detectLayout(rows [][]string) (layout, error) {
	switch {
	case cellAt(rows, subHeadingRow, 2) == "Qt":
		return canonicalLayout, nil
	case strings.HasPrefix(cellAt(rows, headingRow, 2), "Validade"),
		cellAt(rows, subHeadingRow, 2) == "" && cellAt(rows, subHeadingRow, 3) == "Qt":
		return legacyLayout, nil
	default:
		return layout{}, fmt.Errorf("%w: unrecognized header layout", models.ErrDecode)
	}
}

func cellAt(rows [][]string, row, col int) string {
	if row < 0 || row >= len(rows) || col < 0 || col >= len(rows[row]) {
		return ""
	}
	return strings.TrimSpace(rows[row][col])
}

// cellName converts 0-based coordinates to an A1 reference.
func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid cell coordinates (%d,%d): %v", col, row, err))
	}
	return name
}
