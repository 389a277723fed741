package service

import (
	"crmbridge/internal/privacy"

	"github.com/sirupsen/logrus"
)

// PhoneForLog masks a phone number unless verbose logging is on
func PhoneForLog(verbose bool, phone string) string {
	if verbose {
		return phone
	}
	return privacy.MaskPhoneNumber(phone)
}

// ChatIDForLog masks a chat address unless verbose logging is on
func ChatIDForLog(verbose bool, chatID string) string {
	if verbose {
		return chatID
	}
	return privacy.MaskChatID(chatID)
}

// recoverAndLog logs a recovered panic. Call it deferred.
func recoverAndLog(logger logrus.FieldLogger, component string) {
	if r := recover(); r != nil {
		logger.WithFields(logrus.Fields{
			LogFieldComponent: component,
			"panic":           r,
		}).Error("Recovered from panic")
	}
}
