/*
Package game
File: collision.go
Description:
    Destination resolution on the integer grid. A requested point snaps to
    its cell; an occupied cell is replaced by the first free cell found
    ring by ring around it, always in the same order.
*/

package game

import "math"

// CellOf snaps plane coordinates to the nearest grid cell.
func CellOf(x, y float64) Cell {
	return Cell{X: int(math.Round(x)), Y: int(math.Round(y))}
}

// OccupiedCells indexes the cells taken by the given objects.
func OccupiedCells(objs []SpaceObject) map[Cell]bool {
	taken := make(map[Cell]bool, len(objs))
	for _, o := range objs {
		taken[o.Cell()] = true
	}
	return taken
}

// FindNearestFreeSpot resolves a requested destination against occupied cells.
//
// The exact cell wins when free. Otherwise square rings of growing Chebyshev
// radius are scanned, top and bottom edges by x first, then the left and right
// edges by y without the corners, and the first free cell is returned. The
// order is part of the contract: players land on a predictable cell.
func FindNearestFreeSpot(target Cell, occupied map[Cell]bool, maxRadius int) (Cell, bool) {
	if !occupied[target] {
		return target, true
	}

	for r := 1; r <= maxRadius; r++ {
		for dx := -r; dx <= r; dx++ {
			for _, c := range [2]Cell{
				{X: target.X + dx, Y: target.Y - r},
				{X: target.X + dx, Y: target.Y + r},
			} {
				if !occupied[c] {
					return c, true
				}
			}
		}
		for dy := -r + 1; dy <= r-1; dy++ {
			for _, c := range [2]Cell{
				{X: target.X - r, Y: target.Y + dy},
				{X: target.X + r, Y: target.Y + dy},
			} {
				if !occupied[c] {
					return c, true
				}
			}
		}
	}
	return Cell{}, false
}
