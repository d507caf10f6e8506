//go:build darwin

package biometric

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework LocalAuthentication -framework Foundation -framework Security -framework CoreFoundation

#import <LocalAuthentication/LocalAuthentication.h>
#import <Foundation/Foundation.h>
#import <dispatch/dispatch.h>
#include <stdlib.h>

static int epicvault_bio_available(void) {
	@autoreleasepool {
		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return -100;
		}
		NSError *canError = nil;
		if ([context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			return 0;
		}
		return canError ? (int)[canError code] : -101;
	}
}

static int epicvault_bio_prompt(const char *cReason) {
	@autoreleasepool {
		NSString *reason = cReason ? [[NSString alloc] initWithUTF8String:cReason] : @"Authenticate to continue";
		if (!reason) {
			reason = @"Authenticate to continue";
		}

		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return -100;
		}

		NSError *canError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			return canError ? (int)[canError code] : -101;
		}

		dispatch_semaphore_t sema = dispatch_semaphore_create(0);

		__block BOOL success = NO;
		__block NSError *evalError = nil;

		[context evaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics
		        localizedReason:reason
		                  reply:^(BOOL evaluated, NSError * _Nullable error) {
		                      success = evaluated;
		                      evalError = error;
		                      dispatch_semaphore_signal(sema);
		                  }];

		dispatch_time_t timeout = dispatch_time(DISPATCH_TIME_NOW, (int64_t)(60 * NSEC_PER_SEC));
		long waitResult = dispatch_semaphore_wait(sema, timeout);
		[context invalidate];

		if (waitResult != 0) {
			return -103;
		}
		if (success) {
			return 0;
		}
		return evalError ? (int)[evalError code] : -104;
	}
}
*/
import "C"
import (
	"context"
	"fmt"
	"strings"
	"unsafe"

	keychain "github.com/keybase/go-keychain"

	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
)

// LAError codes surfaced by LocalAuthentication.
const (
	laErrorUserCancel   = -2
	laErrorSystemCancel = -4
)

const (
	hwKeyService = "com.passwordepic.vault.hwkey"
	hwKeyAccount = "device-key"
	hwKeyLabel   = "PasswordEpic hardware key"
)

// Darwin backs the Hardware contract with Touch ID via LocalAuthentication.
// The provisioned key handle is kept in the Keychain under a device-only,
// non-synchronizable item so its presence tracks the device, not a backup.
type Darwin struct{}

// NewPlatformHardware returns the Touch ID-backed implementation.
func NewPlatformHardware() Hardware {
	return &Darwin{}
}

func (d *Darwin) IsSensorAvailable(ctx context.Context) (Capability, error) {
	if err := ctx.Err(); err != nil {
		return Capability{}, err
	}
	code := int(C.epicvault_bio_available())
	if code == 0 {
		return Capability{Available: true, Kind: KindFingerprint}, nil
	}
	return Capability{
		Available: false,
		Kind:      KindNone,
		Reason:    fmt.Sprintf("biometry unavailable (code %d)", code),
	}, nil
}

func (d *Darwin) CreateHardwareKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle, err := krypto.RandomHex(16)
	if err != nil {
		return "", err
	}

	item := keychain.NewGenericPassword(hwKeyService, hwKeyAccount, hwKeyLabel, []byte(handle), "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenPasscodeSetThisDeviceOnly)

	if err := keychain.AddItem(item); err != nil {
		if err == keychain.ErrorDuplicateItem {
			query := keychain.NewGenericPassword(hwKeyService, hwKeyAccount, "", nil, "")
			update := keychain.NewItem()
			update.SetData([]byte(handle))
			if uerr := keychain.UpdateItem(query, update); uerr != nil {
				return "", fmt.Errorf("update hardware key item: %w", uerr)
			}
			return handle, nil
		}
		return "", ErrKeyCreationUnsupported
	}
	return handle, nil
}

func (d *Darwin) DeleteHardwareKey(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query := keychain.NewGenericPassword(hwKeyService, hwKeyAccount, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil {
		if err == keychain.ErrorItemNotFound {
			return ErrNoHardwareKey
		}
		return fmt.Errorf("delete hardware key item: %w", err)
	}
	return nil
}

func (d *Darwin) HardwareKeyExists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := keychain.GetGenericPassword(hwKeyService, hwKeyAccount, "", "")
	if err != nil {
		if err == keychain.ErrorItemNotFound {
			return false, nil
		}
		return false, fmt.Errorf("query hardware key item: %w", err)
	}
	return len(data) > 0, nil
}

func (d *Darwin) PromptUser(ctx context.Context, title, subtitle, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	reason := strings.TrimSpace(strings.Join([]string{title, subtitle, message}, " "))
	cReason := C.CString(reason)
	defer C.free(unsafe.Pointer(cReason))

	switch code := int(C.epicvault_bio_prompt(cReason)); code {
	case 0:
		return nil
	case laErrorUserCancel, laErrorSystemCancel:
		return ErrPromptCancelled
	default:
		return fmt.Errorf("biometric prompt failed (code %d)", code)
	}
}

var _ Hardware = (*Darwin)(nil)
