package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DEBUG = iota
	INFO
	WARN
	ERROR
)

func ParseLevel(level string) int {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return DEBUG
	}
}

var levelMap = map[int][]byte{
	DEBUG: []byte("DEBUG"),
	INFO:  []byte("INFO"),
	WARN:  []byte("WARN"),
	ERROR: []byte("ERROR"),
}

var (
	leftBracket  = []byte("[")
	rightBracket = []byte("]")
	space        = []byte(" ")
	colon        = []byte(":")
	funcBracket  = []byte("()")
	lineFeed     = []byte("\n")
)

var (
	red     = []byte{27, 91, 51, 49, 109}
	green   = []byte{27, 91, 51, 50, 109}
	yellow  = []byte{27, 91, 51, 51, 109}
	blue    = []byte{27, 91, 51, 52, 109}
	magenta = []byte{27, 91, 51, 53, 109}
	cyan    = []byte{27, 91, 51, 54, 109}
	reset   = []byte{27, 91, 48, 109}
)

const (
	defaultFileMaxSize = 10485760
	logInfoChanSize    = 1000
)

var (
	logger  *Logger = nil
	config  *Config = nil
	running atomic.Bool
)

func GetConfig() *Config {
	return config
}

type Config struct {
	AppName      string    // 应用名 日志文件名前缀
	Level        int       // 日志级别
	TrackLine    bool      // 记录代码行
	TrackThread  bool      // 记录协程和线程id
	EnableFile   bool      // 写日志文件 ./log/<AppName>.log
	FileMaxSize  int32     // 日志文件滚动大小
	DisableColor bool      // 关闭颜色
	Writer       io.Writer // 控制台输出 默认stderr
}

type Logger struct {
	LogFile     *os.File
	LogInfoChan chan *LogInfo
	CloseChan   chan struct{}
}

type LogInfo struct {
	Time        time.Time
	Level       int
	Msg         *[]byte
	FileName    string
	FuncName    string
	Line        int
	GoroutineId string
	ThreadId    string
	TrackLine   bool
	TrackThread bool
}

// InitLogger starts the writer goroutine. Log calls made before InitLogger
// or after CloseLogger are dropped.
func InitLogger(cfg *Config) {
	if cfg == nil {
		cfg = &Config{
			AppName:   "bridged",
			Level:     DEBUG,
			TrackLine: true,
		}
	}
	config = cfg
	if config.FileMaxSize == 0 {
		config.FileMaxSize = defaultFileMaxSize
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	logger = new(Logger)
	logger.LogInfoChan = make(chan *LogInfo, logInfoChanSize)
	logger.CloseChan = make(chan struct{})
	running.Store(true)
	go logger.doLog()
}

func CloseLogger() {
	if !running.CompareAndSwap(true, false) {
		return
	}
	logger.CloseChan <- struct{}{}
	<-logger.CloseChan
}

func (l *Logger) doLog() {
	var logBuf bytes.Buffer
	for {
		select {
		case <-l.CloseChan:
			for {
				select {
				case logInfo := <-l.LogInfoChan:
					l.writeLog(&logBuf, logInfo)
				default:
					if l.LogFile != nil {
						_ = l.LogFile.Close()
					}
					l.CloseChan <- struct{}{}
					return
				}
			}
		case logInfo := <-l.LogInfoChan:
			l.writeLog(&logBuf, logInfo)
		}
	}
}

func (l *Logger) color(logBuf *bytes.Buffer, c []byte) {
	if !config.DisableColor {
		logBuf.Write(c)
	}
}

func (l *Logger) writeLog(logBuf *bytes.Buffer, logInfo *LogInfo) {
	l.color(logBuf, cyan)
	logBuf.Write(leftBracket)
	logBuf.WriteString(logInfo.Time.Format("2006-01-02 15:04:05.000"))
	logBuf.Write(rightBracket)
	l.color(logBuf, reset)
	logBuf.Write(space)

	switch logInfo.Level {
	case DEBUG:
		l.color(logBuf, blue)
	case INFO:
		l.color(logBuf, green)
	case WARN:
		l.color(logBuf, yellow)
	case ERROR:
		l.color(logBuf, red)
	}
	logBuf.Write(leftBracket)
	logBuf.Write(levelMap[logInfo.Level])
	logBuf.Write(rightBracket)
	l.color(logBuf, reset)
	logBuf.Write(space)

	if logInfo.Level == ERROR {
		l.color(logBuf, red)
		logBuf.Write(*logInfo.Msg)
		l.color(logBuf, reset)
	} else {
		logBuf.Write(*logInfo.Msg)
	}

	if logInfo.TrackLine {
		logBuf.Write(space)
		l.color(logBuf, magenta)
		logBuf.Write(leftBracket)
		logBuf.WriteString(logInfo.FileName)
		logBuf.Write(colon)
		logBuf.WriteString(strconv.Itoa(logInfo.Line))
		logBuf.Write(space)
		logBuf.WriteString(logInfo.FuncName)
		logBuf.Write(funcBracket)
		if logInfo.TrackThread {
			logBuf.WriteString(" goroutine:")
			logBuf.WriteString(logInfo.GoroutineId)
			logBuf.WriteString(" thread:")
			logBuf.WriteString(logInfo.ThreadId)
		}
		logBuf.Write(rightBracket)
		l.color(logBuf, reset)
	}
	logBuf.Write(lineFeed)

	_, _ = config.Writer.Write(logBuf.Bytes())
	if config.EnableFile {
		l.writeLogFile(logBuf.Bytes())
	}
	putBuf(logInfo.Msg)
	logInfoPool.Put(logInfo)
	logBuf.Reset()
}

func (l *Logger) openLogFile() bool {
	fileName := "./log/" + config.AppName + ".log"
	_ = os.MkdirAll(path.Dir(fileName), 0755)
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		_, _ = os.Stderr.WriteString(fmt.Sprintf("open log file error: %v\n", err))
		return false
	}
	l.LogFile = file
	return true
}

func (l *Logger) writeLogFile(logData []byte) {
	if l.LogFile == nil && !l.openLogFile() {
		return
	}
	fileStat, err := l.LogFile.Stat()
	if err != nil {
		_, _ = os.Stderr.WriteString(fmt.Sprintf("get log file stat error: %v\n", err))
		return
	}
	if fileStat.Size() >= int64(config.FileMaxSize) {
		_ = l.LogFile.Close()
		name := l.LogFile.Name()
		l.LogFile = nil
		if err := os.Rename(name, name+"."+time.Now().Format("20060102150405")); err != nil {
			_, _ = os.Stderr.WriteString(fmt.Sprintf("rename old log file error: %v\n", err))
		}
		if !l.openLogFile() {
			return
		}
	}
	if _, err := l.LogFile.Write(logData); err != nil {
		_, _ = os.Stderr.WriteString(fmt.Sprintf("write log file error: %v\n", err))
	}
}

var bufPool = sync.Pool{New: func() any { return new([]byte) }}

func getBuf() *[]byte {
	p := bufPool.Get().(*[]byte)
	*p = (*p)[0:0]
	return p
}

func putBuf(p *[]byte) {
	if cap(*p) > 64<<10 {
		*p = nil
	}
	bufPool.Put(p)
}

var logInfoPool = sync.Pool{New: func() any { return new(LogInfo) }}

func formatLog(level int, msg string, param []any) {
	logInfo := logInfoPool.Get().(*LogInfo)
	*logInfo = LogInfo{Time: time.Now(), Level: level}
	buf := getBuf()
	*buf = fmt.Appendf(*buf, msg, param...)
	logInfo.Msg = buf
	if config.TrackLine {
		logInfo.FileName, logInfo.Line, logInfo.FuncName = logger.getLineFunc()
		logInfo.TrackLine = true
	}
	if config.TrackThread {
		logInfo.GoroutineId = logger.getGoroutineId()
		logInfo.ThreadId = logger.getThreadId()
		logInfo.TrackThread = true
	}
	logger.LogInfoChan <- logInfo
}

func enabled(level int) bool {
	return running.Load() && config.Level <= level
}

func Debug(msg string, param ...any) {
	if !enabled(DEBUG) {
		return
	}
	formatLog(DEBUG, msg, param)
}

func Info(msg string, param ...any) {
	if !enabled(INFO) {
		return
	}
	formatLog(INFO, msg, param)
}

func Warn(msg string, param ...any) {
	if !enabled(WARN) {
		return
	}
	formatLog(WARN, msg, param)
}

func Error(msg string, param ...any) {
	if !enabled(ERROR) {
		return
	}
	formatLog(ERROR, msg, param)
}

func (l *Logger) getGoroutineId() (goroutineId string) {
	buf := make([]byte, 32)
	runtime.Stack(buf, false)
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	buf = buf[:bytes.IndexByte(buf, ' ')]
	goroutineId = string(buf)
	return goroutineId
}

func (l *Logger) getLineFunc() (fileName string, line int, funcName string) {
	var pc uintptr
	var file string
	var ok bool
	pc, file, line, ok = runtime.Caller(3)
	if !ok {
		return "???", -1, "???"
	}
	fileName = path.Base(file)
	funcName = runtime.FuncForPC(pc).Name()
	split := strings.Split(funcName, ".")
	if len(split) != 0 {
		funcName = split[len(split)-1]
	}
	return fileName, line, funcName
}

func Stack() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}
