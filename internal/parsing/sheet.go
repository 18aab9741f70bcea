package parsing

import "sort"

// ParseSheet parses every data row below headerRow. Only columns present in
// columnMap are read; RowIndex is the 1-based row number a user sees in Excel.
func ParseSheet(sheet [][]Cell, columnMap map[int]Field, currency string, headerRow int, allowed CategorySet) []Row {
	cols := make([]int, 0, len(columnMap))
	for c := range columnMap {
		if c >= 0 {
			cols = append(cols, c)
		}
	}
	sort.Ints(cols)

	firstData := headerRow + 1
	if firstData < 0 || firstData >= len(sheet) {
		return []Row{}
	}

	rows := make([]Row, 0, len(sheet)-firstData)
	for offset, raw := range sheet[firstData:] {
		cells := make(map[Field]Cell, len(cols))
		for _, c := range cols {
			if c >= len(raw) {
				continue
			}
			if v := Normalize(raw[c]); v != nil {
				cells[columnMap[c]] = v
			}
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, ParseRow(headerRow+2+offset, cells, currency, allowed))
	}
	return rows
}
