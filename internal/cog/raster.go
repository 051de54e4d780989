package cog

import "github.com/cogengine/raster/internal/array"

// ReadRaster implements spec.md §6.2's read_raster<T> contract: assemble a
// full pyramid level into one DenseArray[T], iterating chunks in on-disk
// order and placing each into the destination, trimming partial edge tiles
// and the last striped row so the assembled raster never reads past the
// level's declared width/height (DESIGN.md Open Question 2 — do not
// replicate the teacher's unbounded-copy behavior in ReadRegion/ReadTile).
func ReadRaster[T array.Numeric](src ByteSource, level *PyramidInfo, ctx *chunkContext) (*array.DenseArray[T], error) {
	wantType := array.TypeOf[T]()
	if wantType != ctx.ElementType {
		return nil, errInvalidArgument("requested element type %v does not match raster's native type %v", wantType, ctx.ElementType)
	}

	rows := int(level.RasterSize.Rows)
	cols := int(level.RasterSize.Cols)
	nodata := array.Nodata[T]()
	dst := make([]T, rows*cols)
	for i := range dst {
		dst[i] = nodata
	}

	ifd := ctx.IFD
	if ifd.IsTiled() {
		if err := placeTiledChunks[T](src, level, ctx, dst, rows, cols); err != nil {
			return nil, err
		}
	} else {
		if err := placeStrippedChunks[T](src, level, ctx, dst, rows, cols); err != nil {
			return nil, err
		}
	}

	meta := array.PlainMetadata(array.RasterSize{Rows: int32(rows), Cols: int32(cols)})
	return array.New[T](meta, dst)
}

// placeTiledChunks walks the chunk locations in the row-major tile order
// TIFF stores them in, reading each tile and copying only the portion that
// overlaps the level's true width/height into dst (spec.md §4.4's
// partial-edge-tile trimming).
func placeTiledChunks[T array.Numeric](src ByteSource, level *PyramidInfo, ctx *chunkContext, dst []T, rows, cols int) error {
	ifd := ctx.IFD
	tw := int(ifd.TileWidth)
	th := int(ifd.TileHeight)
	if tw == 0 || th == 0 {
		return errInvalidHeader("tiled IFD missing tile dimensions")
	}
	tilesAcross := ifd.TilesAcross()

	for idx, loc := range level.ChunkLocations {
		tileCol := idx % tilesAcross
		tileRow := idx / tilesAcross

		originX := tileCol * tw
		originY := tileRow * th
		if originX >= cols || originY >= rows {
			continue
		}

		tile, err := ReadChunk[T](src, loc, ctx)
		if err != nil {
			return err
		}

		maxX := originX + tw
		if maxX > cols {
			maxX = cols
		}
		maxY := originY + th
		if maxY > rows {
			maxY = rows
		}
		tileW := maxX - originX

		tileData := tile.AsSlice()
		for y := originY; y < maxY; y++ {
			srcOff := (y - originY) * tw
			dstOff := y*cols + originX
			copy(dst[dstOff:dstOff+tileW], tileData[srcOff:srcOff+tileW])
		}
	}
	return nil
}

// placeStrippedChunks walks row-major strip locations, trimming the final
// strip to whatever rows remain rather than copying RowsPerStrip rows past
// the image's declared height.
func placeStrippedChunks[T array.Numeric](src ByteSource, level *PyramidInfo, ctx *chunkContext, dst []T, rows, cols int) error {
	ifd := ctx.IFD
	rps := int(ifd.RowsPerStrip)
	if rps == 0 {
		return errInvalidHeader("striped IFD missing rows-per-strip")
	}

	for idx, loc := range level.ChunkLocations {
		originY := idx * rps
		if originY >= rows {
			continue
		}
		maxY := originY + rps
		if maxY > rows {
			maxY = rows
		}
		stripRows := maxY - originY

		strip, err := ReadChunk[T](src, loc, ctx)
		if err != nil {
			return err
		}

		stripData := strip.AsSlice()
		dstOff := originY * cols
		copy(dst[dstOff:dstOff+stripRows*cols], stripData[:stripRows*cols])
	}
	return nil
}
