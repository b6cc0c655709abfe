package virtual

// demuxer splits a byte stream into the container header and records.
type demuxer struct {
	header *Header
	buf    []byte

	// offset is the absolute position of buf[0], negative if unknown.
	offset int64
}

func (d *demuxer) reset(offset int64) {
	d.buf = nil
	d.offset = offset
}

func (d *demuxer) feed(offset uint64, data []byte) {
	if d.offset < 0 {
		d.offset = int64(offset)
	}
	d.buf = append(d.buf, data...)
}

func (d *demuxer) end() int64 {
	return d.offset + int64(len(d.buf))
}

func (d *demuxer) pending() int {
	return len(d.buf)
}

// next returns either the header or a packet, errNeedMoreData if the
// buffered bytes are not enough for either.
func (d *demuxer) next() (*Header, *Packet, error) {
	if d.header == nil {
		h, err := ParseHeader(d.buf)
		if err != nil {
			return nil, nil, err
		}
		d.header = h
		d.consume(int(h.Size))
		return h, nil, nil
	}
	p, n, err := ParseRecord(d.buf, len(d.header.Streams))
	if err != nil {
		return nil, nil, err
	}
	d.consume(n)
	return nil, p, nil
}

func (d *demuxer) consume(n int) {
	d.buf = d.buf[n:]
	d.offset += int64(n)
	if len(d.buf) == 0 {
		d.buf = nil
	}
}
