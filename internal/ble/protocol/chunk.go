package protocol

// FSChunkSize is the file content carried per read/write frame.
const FSChunkSize = 200

// DFUPacketSize is the firmware payload per DFU packet write.
const DFUPacketSize = 20

// ChunkBytes splits data into consecutive slices of at most size bytes.
// The slices alias data. Returns nil for empty data or size <= 0.
func ChunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 || size <= 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		chunks = append(chunks, data[:size:size])
		data = data[size:]
	}
	return append(chunks, data)
}
