// Package watcher follows gamelog files and feeds their lines into the
// textual event pipeline. Local files are tailed; remote gamelogs on rented
// game boxes can be polled over FTP or SFTP.
package watcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

const remotePollInterval = 5 * time.Second

// LogSource defines an interface for different gamelog sources.
type LogSource interface {
	// Watch starts following the log and returns a channel of lines.
	Watch(ctx context.Context) (<-chan string, error)
	// Close the log source.
	Close() error
}

// LocalFileSource tails a local gamelog file. New content only; whatever is
// in the file at startup is skipped.
type LocalFileSource struct {
	filepath string
	tail     *tail.Tail
}

func NewLocalFileSource(path string) *LocalFileSource {
	return &LocalFileSource{filepath: path}
}

func (l *LocalFileSource) Watch(ctx context.Context) (<-chan string, error) {
	t, err := tail.TailFile(filepath.Clean(l.filepath), tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return nil, err
	}
	l.tail = t

	logChan := make(chan string)
	go func() {
		defer close(logChan)
		for {
			select {
			case line := <-t.Lines:
				if line != nil {
					select {
					case logChan <- strings.TrimSpace(line.Text):
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return logChan, nil
}

func (l *LocalFileSource) Close() error {
	if l.tail != nil {
		return l.tail.Stop()
	}
	return nil
}

// remoteTail carries the offset bookkeeping shared by the polled remote
// sources: read from lastPos, reset on rotation, emit only complete lines.
type remoteTail struct {
	mu      sync.Mutex
	lastPos int64
	partial string
}

func (r *remoteTail) consume(size int64, open func(offset int64) (io.ReadCloser, error)) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if size == r.lastPos {
		return nil, nil
	}
	if size < r.lastPos {
		// rotated or truncated upstream
		r.lastPos = 0
		r.partial = ""
	}

	reader, err := open(r.lastPos)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	r.lastPos += int64(len(data))

	text := r.partial + string(data)
	var lines []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(text[:idx]); line != "" {
			lines = append(lines, line)
		}
		text = text[idx+1:]
	}
	r.partial = text
	return lines, nil
}

func (r *remoteTail) skipTo(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPos = size
}

// FTPSource polls a gamelog over FTP.
type FTPSource struct {
	addr     string
	username string
	password string
	path     string
	conn     *ftp.ServerConn
	tail     remoteTail
}

func NewFTPSource(addr, username, password, path string) *FTPSource {
	return &FTPSource{addr: addr, username: username, password: password, path: path}
}

func (f *FTPSource) connect() error {
	conn, err := ftp.Dial(f.addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("failed to dial FTP server: %w", err)
	}
	if err := conn.Login(f.username, f.password); err != nil {
		conn.Quit()
		return fmt.Errorf("FTP login failed: %w", err)
	}
	f.conn = conn
	return nil
}

func (f *FTPSource) Watch(ctx context.Context) (<-chan string, error) {
	if err := f.connect(); err != nil {
		return nil, err
	}
	if size, err := f.conn.FileSize(f.path); err == nil {
		f.tail.skipTo(size)
	}

	logChan := make(chan string)
	go func() {
		defer close(logChan)
		ticker := time.NewTicker(remotePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lines, err := f.poll()
				if err != nil {
					log.Warn().Err(err).Str("addr", f.addr).Msg("FTP poll failed, reconnecting")
					if err := f.connect(); err != nil {
						log.Error().Err(err).Str("addr", f.addr).Msg("FTP reconnect failed")
					}
					continue
				}
				for _, line := range lines {
					select {
					case logChan <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return logChan, nil
}

func (f *FTPSource) poll() ([]string, error) {
	size, err := f.conn.FileSize(f.path)
	if err != nil {
		return nil, err
	}
	return f.tail.consume(size, func(offset int64) (io.ReadCloser, error) {
		return f.conn.RetrFrom(f.path, uint64(offset))
	})
}

func (f *FTPSource) Close() error {
	if f.conn != nil {
		return f.conn.Quit()
	}
	return nil
}

// SFTPSource polls a gamelog over SFTP.
type SFTPSource struct {
	addr     string
	username string
	password string
	path     string
	sshConn  *ssh.Client
	client   *sftp.Client
	tail     remoteTail
}

func NewSFTPSource(addr, username, password, path string) *SFTPSource {
	return &SFTPSource{addr: addr, username: username, password: password, path: path}
}

func (s *SFTPSource) connect() error {
	sshConn, err := ssh.Dial("tcp", s.addr, &ssh.ClientConfig{
		User:            s.username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to dial SSH server: %w", err)
	}
	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	s.sshConn = sshConn
	s.client = client
	return nil
}

func (s *SFTPSource) Watch(ctx context.Context) (<-chan string, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}
	if stat, err := s.client.Stat(s.path); err == nil {
		s.tail.skipTo(stat.Size())
	}

	logChan := make(chan string)
	go func() {
		defer close(logChan)
		ticker := time.NewTicker(remotePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lines, err := s.poll()
				if err != nil {
					log.Warn().Err(err).Str("addr", s.addr).Msg("SFTP poll failed, reconnecting")
					s.Close()
					if err := s.connect(); err != nil {
						log.Error().Err(err).Str("addr", s.addr).Msg("SFTP reconnect failed")
					}
					continue
				}
				for _, line := range lines {
					select {
					case logChan <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return logChan, nil
}

func (s *SFTPSource) poll() ([]string, error) {
	stat, err := s.client.Stat(s.path)
	if err != nil {
		return nil, err
	}
	return s.tail.consume(stat.Size(), func(offset int64) (io.ReadCloser, error) {
		f, err := s.client.Open(s.path)
		if err != nil {
			return nil, err
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	})
}

func (s *SFTPSource) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	if s.sshConn != nil {
		return s.sshConn.Close()
	}
	return nil
}

// NewSourceFromURL builds a remote source from an ftp:// or sftp:// URL.
func NewSourceFromURL(raw string) (LogSource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid gamelog source %q: %w", raw, err)
	}
	password, _ := u.User.Password()
	host := u.Host
	switch u.Scheme {
	case "ftp":
		if !strings.Contains(host, ":") {
			host += ":21"
		}
		return NewFTPSource(host, u.User.Username(), password, u.Path), nil
	case "sftp":
		if !strings.Contains(host, ":") {
			host += ":22"
		}
		return NewSFTPSource(host, u.User.Username(), password, u.Path), nil
	default:
		return nil, fmt.Errorf("unsupported gamelog source scheme %q", u.Scheme)
	}
}
