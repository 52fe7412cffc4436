package render

// Tile is a rectangle of pixels, [ColSrc, ColLim) × [RowSrc, RowLim).
type Tile struct {
	ColSrc, ColLim int
	RowSrc, RowLim int
}

func (t Tile) Pixels() int {
	return (t.ColLim - t.ColSrc) * (t.RowLim - t.RowSrc)
}

// SplitTiles covers a cols×rows image with disjoint tiles at most tileSize on a
// side.  Tiles along the top and right edges may be smaller.
func SplitTiles(cols, rows, tileSize int) []Tile {
	if tileSize <= 0 {
		tileSize = 1
	}

	tiles := []Tile{}
	for rowSrc := 0; rowSrc < rows; rowSrc += tileSize {
		rowLim := rowSrc + tileSize
		if rowLim > rows {
			rowLim = rows
		}
		for colSrc := 0; colSrc < cols; colSrc += tileSize {
			colLim := colSrc + tileSize
			if colLim > cols {
				colLim = cols
			}
			tiles = append(tiles, Tile{
				ColSrc: colSrc,
				ColLim: colLim,
				RowSrc: rowSrc,
				RowLim: rowLim,
			})
		}
	}
	return tiles
}
