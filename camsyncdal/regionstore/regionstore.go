package regionstore

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	parquetreader "github.com/xitongsys/parquet-go/reader"
	parquetwriter "github.com/xitongsys/parquet-go/writer"
)

const (
	RegionInfoFileName = "region.json"
	NodesFileName      = "nodes.parquet"
	TilesDirName       = "tiles"

	parquetParallelism = 4
)

// parquetNode is the on-disk row of the node snapshot
type parquetNode struct {
	ID          int64   `parquet:"name=id, type=INT64"`
	Lat         float64 `parquet:"name=lat, type=DOUBLE"`
	Lon         float64 `parquet:"name=lon, type=DOUBLE"`
	TagsJSON    string  `parquet:"name=tags_json, type=BYTE_ARRAY, convertedtype=UTF8"`
	Constrained bool    `parquet:"name=constrained, type=BOOLEAN"`
}

// RegionDir is an offline region stored in a directory:
//
//	region.json             region metadata
//	nodes.parquet           node snapshot
//	tiles/{z}/{x}/{y}.png   raster tiles
type RegionDir struct {
	fs      gofs.Fs
	dirPath string
	region  *camsyncdal.OfflineRegion

	nodesOnce sync.Once
	nodes     []*camsync.RemoteNode
	nodesErr  errorsx.Error
}

var _ camsyncdal.OfflineRegionConn = &RegionDir{}

func Open(fs gofs.Fs, dirPath string) (*RegionDir, errorsx.Error) {
	data, err := fs.ReadFile(filepath.Join(dirPath, RegionInfoFileName))
	if err != nil {
		return nil, errorsx.Wrap(err, "dirPath", dirPath)
	}

	region := new(camsyncdal.OfflineRegion)
	err = json.Unmarshal(data, region)
	if err != nil {
		return nil, errorsx.Wrap(err, "dirPath", dirPath)
	}

	return &RegionDir{
		fs:      fs,
		dirPath: dirPath,
		region:  region,
	}, nil
}

// LoadAll opens every region directory under parentDir. Directories that can't be opened are logged and skipped.
func LoadAll(logger *logpkg.Logger, fs gofs.Fs, parentDir string) ([]camsyncdal.OfflineRegionConn, errorsx.Error) {
	dirItems, err := fs.ReadDir(parentDir)
	if err != nil {
		return nil, errorsx.Wrap(err, "parentDir", parentDir)
	}

	var conns []camsyncdal.OfflineRegionConn
	for _, dirItem := range dirItems {
		if !dirItem.IsDir() {
			continue
		}

		dirPath := filepath.Join(parentDir, dirItem.Name())
		regionDir, err := Open(fs, dirPath)
		if err != nil {
			logger.Error("failed to load offline region from %q. Error: %q\nStack: %s", dirPath, err.Error(), err.Stack())
			continue
		}

		conns = append(conns, regionDir)
	}

	return conns, nil
}

func (d *RegionDir) Name() string {
	return d.region.Name
}

func (d *RegionDir) RegionInfo() *camsyncdal.OfflineRegion {
	return d.region
}

func (d *RegionDir) NodesInBounds(ctx context.Context, bounds camsync.GeoRect) ([]*camsync.RemoteNode, errorsx.Error) {
	d.nodesOnce.Do(func() {
		d.nodes, d.nodesErr = readNodes(filepath.Join(d.dirPath, NodesFileName))
	})
	if d.nodesErr != nil {
		return nil, d.nodesErr
	}

	var nodes []*camsync.RemoteNode
	for _, node := range d.nodes {
		if camsync.IsInBounds(bounds, node.Lat, node.Lon) {
			nodes = append(nodes, node)
		}
	}

	return nodes, nil
}

func (d *RegionDir) TileBytes(z, x, y int) ([]byte, errorsx.Error) {
	data, err := d.fs.ReadFile(TilePath(d.dirPath, z, x, y))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errorsx.Wrap(camsyncdal.ErrNoDataAvailable, "z", z, "x", x, "y", y)
		}
		return nil, errorsx.Wrap(err)
	}

	return data, nil
}

func TilePath(dirPath string, z, x, y int) string {
	return filepath.Join(dirPath, TilesDirName, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".png")
}

// Writer creates a region directory. The node snapshot is written with the local
// file system, so dirPath must be a real directory.
type Writer struct {
	fs      gofs.Fs
	dirPath string
}

func NewWriter(fs gofs.Fs, dirPath string) (*Writer, errorsx.Error) {
	err := fs.MkdirAll(filepath.Join(dirPath, TilesDirName), 0755)
	if err != nil {
		return nil, errorsx.Wrap(err, "dirPath", dirPath)
	}

	return &Writer{fs, dirPath}, nil
}

func (w *Writer) WriteRegionInfo(region *camsyncdal.OfflineRegion) errorsx.Error {
	data, err := json.MarshalIndent(region, "", "\t")
	if err != nil {
		return errorsx.Wrap(err)
	}

	err = w.fs.WriteFile(filepath.Join(w.dirPath, RegionInfoFileName), data, 0644)
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

func (w *Writer) WriteTile(z, x, y int, data []byte) errorsx.Error {
	tilePath := TilePath(w.dirPath, z, x, y)

	err := w.fs.MkdirAll(filepath.Dir(tilePath), 0755)
	if err != nil {
		return errorsx.Wrap(err)
	}

	err = w.fs.WriteFile(tilePath, data, 0644)
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

func (w *Writer) WriteNodes(nodes []*camsync.RemoteNode) errorsx.Error {
	fileWriter, err := local.NewLocalFileWriter(filepath.Join(w.dirPath, NodesFileName))
	if err != nil {
		return errorsx.Wrap(err)
	}
	defer fileWriter.Close()

	pw, err := parquetwriter.NewParquetWriter(fileWriter, new(parquetNode), parquetParallelism)
	if err != nil {
		return errorsx.Wrap(err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, node := range nodes {
		tagsJSON, err := json.Marshal(node.Tags)
		if err != nil {
			return errorsx.Wrap(err, "nodeID", node.ID)
		}

		err = pw.Write(parquetNode{
			ID:          node.ID,
			Lat:         node.Lat,
			Lon:         node.Lon,
			TagsJSON:    string(tagsJSON),
			Constrained: node.Constrained,
		})
		if err != nil {
			return errorsx.Wrap(err, "nodeID", node.ID)
		}
	}

	err = pw.WriteStop()
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

func readNodes(filePath string) ([]*camsync.RemoteNode, errorsx.Error) {
	fileReader, err := local.NewLocalFileReader(filePath)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}
	defer fileReader.Close()

	pr, err := parquetreader.NewParquetReader(fileReader, new(parquetNode), parquetParallelism)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}
	defer pr.ReadStop()

	rowCount := int(pr.GetNumRows())
	if rowCount == 0 {
		return nil, nil
	}

	rows := make([]parquetNode, rowCount)
	err = pr.Read(&rows)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}

	nodes := make([]*camsync.RemoteNode, len(rows))
	for i, row := range rows {
		tags := make(camsync.TagMap)
		err = json.Unmarshal([]byte(row.TagsJSON), &tags)
		if err != nil {
			return nil, errorsx.Wrap(err, "nodeID", row.ID)
		}

		nodes[i] = &camsync.RemoteNode{
			ID:          row.ID,
			Lat:         row.Lat,
			Lon:         row.Lon,
			Tags:        tags,
			Constrained: row.Constrained,
		}
	}

	return nodes, nil
}
