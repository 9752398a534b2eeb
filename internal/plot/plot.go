// Package plot は描画用の合成データを生成する
//
// 矩形レコードの列から、Vega-Liteの折れ線として描画できる点列を作る。
// 各レコードの2つの角を点として並べ、レコード間には y を持たない
// 区切り点を挟んでペンを持ち上げる。
package plot

// Record は矩形の対角を表す入力レコード
type Record struct {
	X0 float64 `yaml:"x0"`
	Y0 float64 `yaml:"y0"`
	X1 float64 `yaml:"x1"`
	Y1 float64 `yaml:"y1"`
}

// Point は描画点。Y が nil の点は区切り点
type Point struct {
	X float64  `json:"x"`
	Y *float64 `json:"y"`
}

// Display はクライアントへ送る描画データ
type Display struct {
	Points []Point `json:"points"`
}

// IsSeparator は区切り点かどうかを返す
func (p Point) IsSeparator() bool {
	return p.Y == nil
}

// MakeDisplay はレコード列から描画データを生成する
//
// N個のレコードから 3N-1 個の点を返す。区切り点の x は全レコードの X0 の平均。
// records が空の場合は panic する（呼び出し側で非空を保証すること）。
func MakeDisplay(records []Record) Display {
	if len(records) == 0 {
		panic("plot: MakeDisplay に空のレコード列が渡されました")
	}

	var sumX float64
	for _, r := range records {
		sumX += r.X0
	}
	meanX := sumX / float64(len(records))

	points := make([]Point, 0, 3*len(records)-1)
	for i, r := range records {
		if i > 0 {
			points = append(points, Point{X: meanX})
		}
		points = append(points,
			Point{X: r.X0, Y: float64Ptr(r.Y0)},
			Point{X: r.X1, Y: float64Ptr(r.Y1)},
		)
	}

	return Display{Points: points}
}

// DemoRecords はデモ用の固定レコードを返す
func DemoRecords() []Record {
	return []Record{
		{X0: 200, Y0: 223, X1: 210, Y1: 233},
		{X0: 300, Y0: 323, X1: 310, Y1: 333},
		{X0: 100, Y0: 123, X1: 110, Y1: 133},
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
