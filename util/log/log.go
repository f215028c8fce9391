// Copyright 2024 The CurveBS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level uint8

const (
	DebugLevel Level = 1
	InfoLevel         = DebugLevel<<1 + 1
	WarnLevel         = InfoLevel<<1 + 1
	ErrorLevel        = WarnLevel<<1 + 1
)

var levelPrefixes = []string{
	"[DEBUG]",
	"[INFO.]",
	"[WARN.]",
	"[ERROR]",
}

// Log wraps a single rotated sink shared by every level. The chunk client
// is one process talking to many chunk servers; unlike the metanode/datanode
// daemons it doesn't need per-level files, just one ordered stream.
type Log struct {
	out   *log.Logger
	level int32 // atomic, holds a Level
}

var gLog atomic.Value // holds *Log

func init() {
	gLog.Store(&Log{
		out:   log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		level: int32(InfoLevel),
	})
}

// InitFileLog points the package logger at a size/age rotated file instead
// of stderr. dir == "" leaves the default stderr sink in place.
func InitFileLog(dir, module string, level Level) error {
	if dir == "" {
		SetLevel(level)
		return nil
	}
	if fi, err := os.Stat(dir); err != nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	} else if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	w := &lumberjack.Logger{
		Filename:   dir + "/" + module + ".log",
		MaxSize:    100, // MB
		MaxAge:     14,  // days
		MaxBackups: 10,
		LocalTime:  true,
	}
	gLog.Store(&Log{
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level: int32(level),
	})
	return nil
}

// SetLevel changes the minimum level emitted by the package functions.
func SetLevel(level Level) {
	l := gLog.Load().(*Log)
	atomic.StoreInt32(&l.level, int32(level))
}

func (l *Log) enabled(want Level) bool {
	level := Level(atomic.LoadInt32(&l.level))
	return want&level == level
}

func prefix(idx int, s string) string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return levelPrefixes[idx] + " " + s
	}
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return levelPrefixes[idx] + " " + short + ":" + strconv.Itoa(line) + ": " + s
}

func emit(level Level, idx int, s string) {
	l := gLog.Load().(*Log)
	if !l.enabled(level) {
		return
	}
	l.out.Output(4, prefix(idx, s))
}

func LogDebug(v ...interface{}) { emit(DebugLevel, 0, fmt.Sprintln(v...)) }

func LogDebugf(format string, v ...interface{}) { emit(DebugLevel, 0, fmt.Sprintf(format, v...)) }

func LogInfo(v ...interface{}) { emit(InfoLevel, 1, fmt.Sprintln(v...)) }

func LogInfof(format string, v ...interface{}) { emit(InfoLevel, 1, fmt.Sprintf(format, v...)) }

func LogWarn(v ...interface{}) { emit(WarnLevel, 2, fmt.Sprintln(v...)) }

func LogWarnf(format string, v ...interface{}) { emit(WarnLevel, 2, fmt.Sprintf(format, v...)) }

func LogError(v ...interface{}) { emit(ErrorLevel, 3, fmt.Sprintln(v...)) }

func LogErrorf(format string, v ...interface{}) { emit(ErrorLevel, 3, fmt.Sprintf(format, v...)) }
