package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/watchlink/internal/ble/protocol"
	"github.com/chaz8081/watchlink/internal/progress"
)

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Path    string
	Size    uint32
	IsDir   bool
	ModTime time.Time
}

// fsExchange writes req to the transfer characteristic and waits for one
// response on st.
func (s *Session) fsExchange(ctx context.Context, st *stream, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fsTransfer.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	return st.await(ctx)
}

// readPrealloc is the number of chunks of buffer ReadFile reserves up front.
const readPrealloc = 64

func (s *Session) timestamp() uint64 {
	return uint64(s.now().UnixNano())
}

// ReadFile reads path starting at offset and returns the bytes from offset to
// the end of the file.
//
// The total size in each read response is taken as the size of the whole
// file, as InfiniTime reports it, not the size remaining after offset. A
// watch reporting the remaining size would end a read from a non-zero offset
// early.
func (s *Session) ReadFile(ctx context.Context, path string, offset uint32, p *progress.Sender) ([]byte, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", path, err)
	}
	defer release()

	content, err := s.readFile(ctx, path, offset, p)
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", path, err)
	}
	return content, nil
}

func (s *Session) readFile(ctx context.Context, path string, offset uint32, p *progress.Sender) ([]byte, error) {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	slog.Debug("[FS] read init", "path", path, "offset", offset)
	data, err := s.fsExchange(ctx, st, protocol.ReadInitRequest(path, offset, s.opts.ChunkSize))
	if err != nil {
		return nil, err
	}
	resp, err := protocol.ParseReadResponse(data)
	if err != nil {
		return nil, err
	}
	if err := resp.Status.Err(protocol.CommandReadInit); err != nil {
		return nil, err
	}

	// total comes from the watch, so it only sizes the first allocation.
	total := resp.TotalSize
	var content []byte
	if total > offset {
		content = make([]byte, 0, min(uint64(total-offset), readPrealloc*uint64(s.opts.ChunkSize)))
	}
	pos := offset

	for {
		content = append(content, resp.Data...)
		pos += uint32(len(resp.Data))
		slog.Debug("[FS] read chunk", "path", path, "offset", pos, "total", total)
		p.Numbers(pos, total)

		if pos >= total {
			return content, nil
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("watch returned an empty chunk at offset %d of %d", pos, total)
		}

		data, err := s.fsExchange(ctx, st, protocol.ReadContinueRequest(pos, s.opts.ChunkSize))
		if err != nil {
			return nil, err
		}
		resp, err = protocol.ParseReadResponse(data)
		if err != nil {
			return nil, err
		}
		if err := resp.Status.Err(protocol.CommandReadContinue); err != nil {
			return nil, err
		}
	}
}

// WriteFile writes content to path starting at offset, creating the file if
// needed. Progress reports bytes written out of len(content).
func (s *Session) WriteFile(ctx context.Context, path string, content []byte, offset uint32, p *progress.Sender) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("fs: write %s: %w", path, err)
	}
	defer release()

	if err := s.writeFile(ctx, path, content, offset, p); err != nil {
		return fmt.Errorf("fs: write %s: %w", path, err)
	}
	return nil
}

func (s *Session) writeFile(ctx context.Context, path string, content []byte, offset uint32, p *progress.Sender) error {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return err
	}
	defer st.Close()

	total := uint32(len(content))
	slog.Debug("[FS] write init", "path", path, "offset", offset, "size", total)
	if err := s.fsWriteStep(ctx, st, protocol.WriteInitRequest(path, offset, total, s.timestamp()), protocol.CommandWriteInit); err != nil {
		return err
	}

	pos := offset
	var sent uint32
	for _, chunk := range protocol.ChunkBytes(content, int(s.opts.ChunkSize)) {
		if err := s.fsWriteStep(ctx, st, protocol.WriteContinueRequest(pos, chunk), protocol.CommandWriteContinue); err != nil {
			return err
		}
		pos += uint32(len(chunk))
		sent += uint32(len(chunk))
		slog.Debug("[FS] write chunk", "path", path, "offset", pos, "sent", sent, "total", total)
		p.Numbers(sent, total)
	}

	slog.Debug("[FS] file written", "path", path, "size", total)
	return nil
}

func (s *Session) fsWriteStep(ctx context.Context, st *stream, req []byte, cmd protocol.Command) error {
	data, err := s.fsExchange(ctx, st, req)
	if err != nil {
		return err
	}
	resp, err := protocol.ParseWriteResponse(data)
	if err != nil {
		return err
	}
	return resp.Status.Err(cmd)
}

// DeleteFile removes a file or an empty directory.
func (s *Session) DeleteFile(ctx context.Context, path string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("fs: delete %s: %w", path, err)
	}
	defer release()

	if err := s.deleteFile(ctx, path); err != nil {
		return fmt.Errorf("fs: delete %s: %w", path, err)
	}
	return nil
}

func (s *Session) deleteFile(ctx context.Context, path string) error {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := s.fsExchange(ctx, st, protocol.DeleteRequest(path))
	if err != nil {
		return err
	}
	status, err := protocol.ParseDeleteResponse(data)
	if err != nil {
		return err
	}
	return status.Err(protocol.CommandDelete)
}

// MakeDir creates a directory. An existing directory is not an error.
func (s *Session) MakeDir(ctx context.Context, path string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("fs: mkdir %s: %w", path, err)
	}
	defer release()

	if err := s.makeDir(ctx, path); err != nil {
		return fmt.Errorf("fs: mkdir %s: %w", path, err)
	}
	return nil
}

func (s *Session) makeDir(ctx context.Context, path string) error {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := s.fsExchange(ctx, st, protocol.MakeDirRequest(path, s.timestamp()))
	if err != nil {
		return err
	}
	resp, err := protocol.ParseMakeDirResponse(data)
	if err != nil {
		return err
	}
	switch resp.Status {
	case protocol.StatusOk:
		slog.Debug("[FS] directory created", "path", path)
		return nil
	case protocol.StatusExists:
		slog.Debug("[FS] directory exists", "path", path)
		return nil
	default:
		return resp.Status.Err(protocol.CommandMakeDir)
	}
}

// MakeDirs creates every ancestor of path, root first. path itself is not
// created; pass a file path to prepare its parent directories.
func (s *Session) MakeDirs(ctx context.Context, path string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("fs: mkdirs %s: %w", path, err)
	}
	defer release()

	if err := s.makeDirs(ctx, path); err != nil {
		return fmt.Errorf("fs: mkdirs %s: %w", path, err)
	}
	return nil
}

func (s *Session) makeDirs(ctx context.Context, path string) error {
	dirs := Ancestors(path)
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.makeDir(ctx, dirs[i]); err != nil {
			return fmt.Errorf("%s: %w", dirs[i], err)
		}
	}
	return nil
}

// ListDir lists the entries of the directory at path.
func (s *Session) ListDir(ctx context.Context, path string) ([]DirEntry, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("fs: ls %s: %w", path, err)
	}
	defer release()

	entries, err := s.listDir(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fs: ls %s: %w", path, err)
	}
	return entries, nil
}

func (s *Session) listDir(ctx context.Context, path string) ([]DirEntry, error) {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	data, err := s.fsExchange(ctx, st, protocol.ListDirRequest(path))
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	for {
		resp, err := protocol.ParseListDirResponse(data)
		if err != nil {
			return nil, err
		}
		if err := resp.Status.Err(protocol.CommandListDir); err != nil {
			return nil, err
		}
		if resp.EntriesTotal == 0 {
			return entries, nil
		}
		entries = append(entries, DirEntry{
			Path:    resp.Path,
			Size:    resp.Size,
			IsDir:   resp.IsDir(),
			ModTime: time.Unix(0, int64(resp.Timestamp)),
		})
		if resp.IsLast() {
			return entries, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if data, err = st.await(ctx); err != nil {
			return nil, fmt.Errorf("listing ended after %d of %d entries: %w", len(entries), resp.EntriesTotal, err)
		}
	}
}

// MoveFile renames oldPath to newPath.
func (s *Session) MoveFile(ctx context.Context, oldPath, newPath string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("fs: mv %s %s: %w", oldPath, newPath, err)
	}
	defer release()

	if err := s.moveFile(ctx, oldPath, newPath); err != nil {
		return fmt.Errorf("fs: mv %s %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (s *Session) moveFile(ctx context.Context, oldPath, newPath string) error {
	st, err := s.subscribe(s.fsTransfer)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := s.fsExchange(ctx, st, protocol.MoveRequest(oldPath, newPath))
	if err != nil {
		return err
	}
	status, err := protocol.ParseMoveResponse(data)
	if err != nil {
		return err
	}
	return status.Err(protocol.CommandMove)
}
