package game

import "testing"

func TestCellOfRounds(t *testing.T) {
	if c := CellOf(2.5, -2.5); c != (Cell{X: 3, Y: -3}) {
		t.Fatalf("got %+v", c)
	}
	if c := CellOf(4.49, 0.2); c != (Cell{X: 4, Y: 0}) {
		t.Fatalf("got %+v", c)
	}
}

func TestFindNearestFreeSpot(t *testing.T) {
	occupied := OccupiedCells([]SpaceObject{{X: 5, Y: 5}})

	if c, ok := FindNearestFreeSpot(Cell{X: 1, Y: 1}, occupied, 30); !ok || c != (Cell{X: 1, Y: 1}) {
		t.Fatalf("free cell must be kept: %+v", c)
	}
	if c, ok := FindNearestFreeSpot(Cell{X: 5, Y: 5}, occupied, 30); !ok || c != (Cell{X: 4, Y: 4}) {
		t.Fatalf("expected (4,4), got %+v", c)
	}
}

func TestFindNearestFreeSpotScanOrder(t *testing.T) {
	// Fill the whole first ring except (6,5), the right edge middle.
	occupied := map[Cell]bool{{X: 5, Y: 5}: true}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			occupied[Cell{X: 5 + dx, Y: 5 + dy}] = true
		}
	}
	delete(occupied, Cell{X: 6, Y: 5})
	delete(occupied, Cell{X: 4, Y: 5})

	// Left edge is visited before the right edge.
	if c, _ := FindNearestFreeSpot(Cell{X: 5, Y: 5}, occupied, 30); c != (Cell{X: 4, Y: 5}) {
		t.Fatalf("expected (4,5), got %+v", c)
	}
	occupied[Cell{X: 4, Y: 5}] = true
	if c, _ := FindNearestFreeSpot(Cell{X: 5, Y: 5}, occupied, 30); c != (Cell{X: 6, Y: 5}) {
		t.Fatalf("expected (6,5), got %+v", c)
	}
	occupied[Cell{X: 6, Y: 5}] = true
	// Ring 2 starts at the top-left corner.
	if c, _ := FindNearestFreeSpot(Cell{X: 5, Y: 5}, occupied, 30); c != (Cell{X: 3, Y: 3}) {
		t.Fatalf("expected (3,3), got %+v", c)
	}
}

func TestFindNearestFreeSpotGivesUp(t *testing.T) {
	occupied := map[Cell]bool{}
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			occupied[Cell{X: x, Y: y}] = true
		}
	}
	if _, ok := FindNearestFreeSpot(Cell{}, occupied, 2); ok {
		t.Fatalf("expected no spot within radius 2")
	}
	if c, ok := FindNearestFreeSpot(Cell{}, occupied, 3); !ok || c != (Cell{X: -3, Y: -3}) {
		t.Fatalf("expected (-3,-3), got %+v", c)
	}
}

func TestFindNearestFreeSpotIsDeterministic(t *testing.T) {
	occupied := OccupiedCells([]SpaceObject{{X: 0, Y: 0}, {X: -1, Y: -1}, {X: 0, Y: -1}})
	first, _ := FindNearestFreeSpot(Cell{}, occupied, 5)
	for i := 0; i < 20; i++ {
		if c, _ := FindNearestFreeSpot(Cell{}, occupied, 5); c != first {
			t.Fatalf("result changed between calls: %+v vs %+v", c, first)
		}
	}
	if first != (Cell{X: -1, Y: 1}) {
		t.Fatalf("expected (-1,1), got %+v", first)
	}
}
