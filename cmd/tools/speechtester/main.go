package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/critter-studio/backend/internal/config"
	speechmodel "github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
	"github.com/zhouzirui/critter-studio/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	text := flag.String("text", "", "待合成文本")
	profileFlag := flag.String("voice", string(voice.Default), "声音档案，可选: "+strings.Join(voice.Identifiers(), ", "))
	outputPath := flag.String("out", "", "输出音频文件路径 (默认自动生成)")
	list := flag.Bool("list", false, "列出全部声音档案后退出")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *list {
		for _, entry := range voice.Catalog() {
			fmt.Printf("%-26s rate=%-5s pitch=%-6s %s\n", entry.Profile, entry.Prosody.Rate, entry.Prosody.Pitch, entry.Description)
		}
		return
	}

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("需要通过 -text 提供待合成文本")
	}

	profile, ok := voice.Parse(*profileFlag)
	if !ok {
		log.Fatalf("未知声音档案 %q，可选: %s", *profileFlag, strings.Join(voice.Identifiers(), ", "))
	}

	svc, err := speech.NewService(&speechmodel.SpeechConfig{
		Endpoint:     cfg.Speech.Endpoint,
		ClientToken:  cfg.Speech.ClientToken,
		OutputFormat: cfg.Speech.OutputFormat,
		Volume:       cfg.Speech.Volume,
		Timeout:      cfg.Speech.Timeout,
	})
	if err != nil {
		log.Fatalf("语音服务初始化失败: %v", err)
	}

	out := *outputPath
	if out == "" {
		out = fmt.Sprintf("tts-%s-%d.mp3", profile.ShortName(), time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())
	log.Printf("开始进行 TTS 测试: session=%s voice=%s", sessionID, profile)

	start := time.Now()
	resp, err := svc.SynthesizeWithProfile(ctx, sessionID, *text, profile)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, %d bytes, 耗时 %s", out, len(resp.AudioData), time.Since(start).Round(time.Millisecond))
}
