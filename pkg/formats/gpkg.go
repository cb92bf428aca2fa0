package formats

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/geoconvert/geoconvert/internal/geoerr"
	"github.com/geoconvert/geoconvert/pkg/dataset"
)

func init() {
	register(driverEntry{
		Descriptor: Descriptor{
			Format: FormatGeoPackage, DriverName: "GPKG", DefaultExt: ".gpkg",
			SingleFile: true, ReadSupported: true, WriteSupported: true,
		},
		Reader: gpkgDriver{},
		Writer: gpkgDriver{},
	})
}

// gpkgDriver implements the OGC GeoPackage format by hand-rolling its
// three mandatory metadata tables and one feature table, rather than
// pulling in a full GPKG/SQLite OGR binding — see DESIGN.md for the
// scope this buys us (single feature table per file, no attribute
// indexes, no tile/raster extensions).
type gpkgDriver struct{}

const gpkgTableName = "features"

func (gpkgDriver) Read(path string, encoding Encoding) (*dataset.Dataset, ReadHints, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "gpkg: opening %s", path)
	}
	defer db.Close()

	var srsID int
	row := db.QueryRow(`SELECT srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, gpkgTableName)
	_ = row.Scan(&srsID)

	cols, err := gpkgColumns(db)
	if err != nil {
		return nil, ReadHints{}, err
	}

	query := fmt.Sprintf(`SELECT geom, %s FROM "%s"`, quoteIdentList(cols), gpkgTableName)
	rows, err := db.Query(query)
	if err != nil {
		return nil, ReadHints{}, geoerr.Wrap(err, geoerr.InvalidInput, "gpkg: querying %s", path)
	}
	defer rows.Close()

	ds := &dataset.Dataset{}
	for _, c := range cols {
		ds.Fields = append(ds.Fields, dataset.Field{Name: c})
	}
	if srsID != 0 {
		ds.EPSG = srsID
	}

	dest := make([]interface{}, len(cols)+1)
	values := make([]interface{}, len(cols)+1)
	for i := range dest {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, ReadHints{}, geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: scanning row")
		}
		var geom orb.Geometry
		if blob, ok := values[0].([]byte); ok {
			g, gerr := decodeGPKGGeometry(blob)
			if gerr == nil {
				geom = g
			}
		}
		props := map[string]interface{}{}
		for i, c := range cols {
			props[c] = values[i+1]
		}
		ds.Features = append(ds.Features, dataset.Feature{Geometry: geom, Properties: props})
	}

	hints := ReadHints{}
	if srsID != 0 {
		hints.DriverEPSG = srsID
	}
	return ds, hints, rows.Err()
}

func gpkgColumns(db *sql.DB) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info("%s")`, gpkgTableName))
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.InvalidInput, "gpkg: reading schema")
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: scanning schema row")
		}
		if name == "fid" || name == "geom" {
			continue
		}
		cols = append(cols, name)
	}
	return cols, nil
}

func quoteIdentList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", c)
	}
	if out == "" {
		return "1"
	}
	return out
}

func (gpkgDriver) Write(ds *dataset.Dataset, path string) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "gpkg: creating %s", path)
	}
	defer db.Close()

	if err := gpkgCreateSchema(db, ds); err != nil {
		return err
	}

	cols := make([]string, len(ds.Fields))
	for i, f := range ds.Fields {
		cols[i] = f.Name
	}
	insertSQL := fmt.Sprintf(`INSERT INTO "%s" (geom, %s) VALUES (?, %s)`,
		gpkgTableName, quoteIdentList(cols), placeholders(len(cols)))
	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: preparing insert")
	}
	defer stmt.Close()

	for row, feat := range ds.Features {
		var geomBlob []byte
		if feat.Geometry != nil {
			geomBlob, err = encodeGPKGGeometry(feat.Geometry, ds.EPSG)
			if err != nil {
				return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: encoding geometry row %d", row)
			}
		}
		args := make([]interface{}, 0, len(cols)+1)
		args = append(args, geomBlob)
		for _, f := range ds.Fields {
			args = append(args, feat.Properties[f.Name])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: inserting row %d", row)
		}
	}
	return nil
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	if out == "" {
		return ""
	}
	return out
}

func gpkgCreateSchema(db *sql.DB, ds *dataset.Dataset) error {
	stmts := []string{
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL, srs_id INTEGER NOT NULL PRIMARY KEY,
			organization TEXT NOT NULL, organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL, description TEXT)`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY, data_type TEXT NOT NULL,
			identifier TEXT, description TEXT, last_change TEXT,
			min_x REAL, min_y REAL, max_x REAL, max_y REAL, srs_id INTEGER)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL, column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL, srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL, m TINYINT NOT NULL,
			PRIMARY KEY (table_name, column_name))`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: creating metadata schema")
		}
	}

	epsg := ds.EPSG
	if epsg == 0 {
		epsg = 4326
	}
	if _, err := db.Exec(
		`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, 'undefined')`,
		fmt.Sprintf("EPSG:%d", epsg), epsg, epsg,
	); err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: seeding srs table")
	}

	cols := make([]string, len(ds.Fields))
	colDefs := ""
	for i, f := range ds.Fields {
		cols[i] = f.Name
		sqlType := "TEXT"
		switch f.Type {
		case dataset.FieldNumeric:
			sqlType = "REAL"
		case dataset.FieldTimestamp:
			sqlType = "TEXT"
		}
		colDefs += fmt.Sprintf(`, %q %s`, f.Name, sqlType)
	}
	createTable := fmt.Sprintf(`CREATE TABLE "%s" (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB%s)`, gpkgTableName, colDefs)
	if _, err := db.Exec(createTable); err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: creating feature table")
	}

	geomType := "GEOMETRY"
	if len(ds.Features) > 0 {
		geomType = dataset.GeometryKind(ds.Features[0].Geometry)
	}
	if _, err := db.Exec(
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', ?, ?, 0, 0)`,
		gpkgTableName, geomType, epsg,
	); err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: seeding geometry_columns")
	}
	if _, err := db.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)`,
		gpkgTableName, gpkgTableName, epsg,
	); err != nil {
		return geoerr.Wrap(err, geoerr.ProcessingError, "gpkg: seeding contents")
	}
	return nil
}

// encodeGPKGGeometry wraps g's WKB in the GeoPackage binary envelope
// (OGC GeoPackage spec §2.1.3): a "GP" magic, version byte, flags byte
// (no envelope, little-endian WKB), and the srs_id, followed by
// standard WKB.
func encodeGPKGGeometry(g orb.Geometry, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(g)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 8)
	header[0], header[1] = 'G', 'P'
	header[2] = 0 // version 0
	header[3] = 0x01 // flags: little-endian, no envelope, not empty
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(srsID)))
	return append(header, body...), nil
}

func decodeGPKGGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, geoerr.New(geoerr.InvalidInput, "gpkg: not a GeoPackage geometry blob")
	}
	flags := blob[3]
	envelopeLen := gpkgEnvelopeLength((flags >> 1) & 0x07)
	offset := 8 + envelopeLen
	if offset > len(blob) {
		return nil, geoerr.New(geoerr.InvalidInput, "gpkg: truncated geometry blob")
	}
	return wkb.Unmarshal(blob[offset:])
}

func gpkgEnvelopeLength(code byte) int {
	switch code {
	case 1:
		return 32
	case 2, 3:
		return 48
	case 4:
		return 64
	default:
		return 0
	}
}
